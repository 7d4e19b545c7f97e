package linking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"AngelLink/internal/metrics"
	"AngelLink/internal/model"
	"AngelLink/internal/notifier"
	"AngelLink/internal/recorder"
	"AngelLink/internal/remote"
)

// ErrPopupBlocked is returned when the login page could not be opened.
var ErrPopupBlocked = errors.New("login popup blocked")

// Options tunes the linking protocol.
type Options struct {
	Timeout      time.Duration // how long the poller waits for the login
	PollInterval time.Duration
	Settle       time.Duration // pause between view switch and scroll
	Now          func() time.Time
}

func (o *Options) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 120 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 4 * time.Second
	}
	if o.Settle < 0 {
		o.Settle = 0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type loginLinkResponse struct {
	URL string `json:"url"`
}

// Service runs broker linking attempts. It owns the acknowledgment gate, the
// completion resolver and the poll watcher; at most one attempt is live.
type Service struct {
	api   API
	ui    notifier.Presenter
	rec   recorder.Recorder
	carry Carryovers
	opts  Options

	gate     *Gate
	watcher  *Watcher
	resolver *Resolver
}

func NewService(api API, store Snapshots, carry Carryovers, ui notifier.Presenter, rec recorder.Recorder, opts Options) *Service {
	opts.setDefaults()
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	gate := newGate(store, ui, rec, opts.Settle)
	watcher := newWatcher(store, gate, ui, rec, opts.PollInterval, opts.Now)
	gate.onAck = watcher.StopAttempt

	s := &Service{
		api:     api,
		ui:      ui,
		rec:     rec,
		carry:   carry,
		opts:    opts,
		gate:    gate,
		watcher: watcher,
		resolver: &Resolver{
			api:       api,
			store:     store,
			gate:      gate,
			carry:     carry,
			ui:        ui,
			rec:       rec,
			onFailure: watcher.StopAttempt,
		},
	}
	return s
}

func (s *Service) Gate() *Gate       { return s.gate }
func (s *Service) Watcher() *Watcher { return s.watcher }

// StartLinking tears down any previous attempt, fetches the login link, opens
// it for the user and starts the fallback poller.
func (s *Service) StartLinking(ctx context.Context) error {
	s.watcher.Stop()
	att := s.gate.Begin(s.opts.Now(), s.opts.Timeout)
	s.record(att.ID, model.OutcomeStarted, "", "")
	metrics.LinkAttempts.WithLabelValues(string(model.OutcomeStarted)).Inc()

	var link loginLinkResponse
	if err := s.api.Get(ctx, PathLoginLink, &link); err != nil {
		if errors.Is(err, remote.ErrSessionExpired) {
			return err
		}
		s.alert(remote.UserMessage(err, "Could not get the Angel login link."))
		s.record(att.ID, model.OutcomeFailed, "", err.Error())
		return fmt.Errorf("login link: %w", err)
	}
	if link.URL == "" {
		s.alert("Could not get the Angel login link.")
		s.record(att.ID, model.OutcomeFailed, "", "empty login url")
		return fmt.Errorf("login link: empty url")
	}

	if err := s.ui.Present(notifier.Event{Type: notifier.EventPopup, Text: link.URL}); err != nil {
		log.Printf("[WARN] open login popup: %v", err)
		s.alert("The Angel login window was blocked. Allow popups for the desk and click Link again.")
		s.record(att.ID, model.OutcomeBlocked, "", err.Error())
		metrics.LinkAttempts.WithLabelValues(string(model.OutcomeBlocked)).Inc()
		return ErrPopupBlocked
	}

	s.watcher.Start(att.ID, att.Deadline)
	log.Printf("[INFO] attempt %s started, waiting until %s", att.ID, att.Deadline.Format(time.TimeOnly))
	return nil
}

// HandleMessage resolves a message posted by the login popup against the live
// attempt. A message with no attempt open (the user reached the login page
// some other way) gets an attempt of its own, without a poller.
func (s *Service) HandleMessage(ctx context.Context, msg model.LinkMessage) (bool, error) {
	if !msg.FromAngel() {
		log.Printf("[INFO] ignoring link message from provider %q", msg.Provider)
		return false, nil
	}
	att, ok := s.gate.Current()
	if !ok {
		att = s.gate.Begin(s.opts.Now(), s.opts.Timeout)
		s.record(att.ID, model.OutcomeStarted, "", "message without attempt")
	}
	return s.resolver.Resolve(ctx, att.ID, msg, false)
}

// ConsumeCarryover resumes a linking result left behind by a previous run.
// The record is removed before anything else happens, so it is consumed once
// even when the completion fails.
func (s *Service) ConsumeCarryover(ctx context.Context) (bool, error) {
	if s.carry == nil {
		return false, nil
	}
	c, err := s.carry.TakeCarryover()
	if err != nil {
		return false, fmt.Errorf("take pending link: %w", err)
	}
	if c.Empty() {
		return false, nil
	}

	att := s.gate.Begin(s.opts.Now(), s.opts.Timeout)
	s.record(att.ID, model.OutcomeStarted, model.ChannelCarryover, "resumed from pending link")
	log.Printf("[INFO] resuming pending Angel link as attempt %s", att.ID)

	tokens := c.Tokens
	if tokens.Empty() {
		tokens = &model.Tokens{TokenID: c.TokenID}
	}
	msg := model.LinkMessage{Provider: model.ProviderAngel, OK: true, Tokens: tokens}
	return s.resolver.Resolve(ctx, att.ID, msg, true)
}

// Shutdown stops the poller.
func (s *Service) Shutdown() {
	s.watcher.Stop()
}

func (s *Service) alert(text string) {
	if err := s.ui.Present(notifier.Event{Type: notifier.EventAlert, Text: text}); err != nil {
		log.Printf("[WARN] present alert: %v", err)
	}
}

func (s *Service) record(attemptID string, outcome model.LinkOutcome, channel model.LinkChannel, note string) {
	if err := s.rec.RecordAttempt(&recorder.AttemptEvent{
		AttemptID: attemptID,
		Outcome:   outcome,
		Channel:   channel,
		Note:      note,
	}); err != nil {
		log.Printf("[ERROR] record link attempt: %v", err)
	}
}
