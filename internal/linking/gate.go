package linking

import (
	"context"
	"log"
	"sync"
	"time"

	"AngelLink/internal/metrics"
	"AngelLink/internal/model"
	"AngelLink/internal/notifier"
	"AngelLink/internal/recorder"

	"github.com/google/uuid"
)

// Attempt is one linking attempt, from login initiation to acknowledgment or
// abandonment.
type Attempt struct {
	ID           string
	StartedAt    time.Time
	Deadline     time.Time
	Acknowledged bool
}

// ProfileRefresher reloads the authoritative snapshot.
type ProfileRefresher interface {
	RefreshProfile(ctx context.Context) (model.Snapshot, error)
}

// Gate admits exactly one "linked" acknowledgment per attempt, whichever
// channel gets there first.
type Gate struct {
	store  ProfileRefresher
	ui     notifier.Presenter
	rec    recorder.Recorder
	settle time.Duration
	sleep  func(time.Duration)

	// onAck tears down the attempt's poller.
	onAck func(attemptID string)

	mu      sync.Mutex
	attempt *Attempt
}

func newGate(store ProfileRefresher, ui notifier.Presenter, rec recorder.Recorder, settle time.Duration) *Gate {
	return &Gate{
		store:  store,
		ui:     ui,
		rec:    rec,
		settle: settle,
		sleep:  time.Sleep,
	}
}

// Begin replaces any previous attempt with a fresh one.
func (g *Gate) Begin(now time.Time, timeout time.Duration) Attempt {
	a := &Attempt{
		ID:        uuid.NewString(),
		StartedAt: now,
		Deadline:  now.Add(timeout),
	}
	g.mu.Lock()
	g.attempt = a
	g.mu.Unlock()
	return *a
}

// Current returns the live attempt, if any.
func (g *Gate) Current() (Attempt, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.attempt == nil {
		return Attempt{}, false
	}
	return *g.attempt, true
}

// Settled reports whether attemptID can no longer be acknowledged, either
// because it already was or because a newer attempt replaced it.
func (g *Gate) Settled(attemptID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempt == nil || g.attempt.ID != attemptID || g.attempt.Acknowledged
}

// Acknowledge completes attemptID. Only the first call for the current attempt
// proceeds: it stops the poller, refreshes the profile, switches to the
// account view, scrolls to the broker section once the view settled and shows
// message. Every other call returns false and does nothing.
func (g *Gate) Acknowledge(ctx context.Context, attemptID string, channel model.LinkChannel, message string) bool {
	g.mu.Lock()
	if g.attempt == nil || g.attempt.ID != attemptID || g.attempt.Acknowledged {
		g.mu.Unlock()
		metrics.LinkAckDuplicates.Inc()
		log.Printf("[INFO] link acknowledgment via %s ignored (attempt %s already settled)", channel, attemptID)
		return false
	}
	g.attempt.Acknowledged = true
	g.mu.Unlock()

	log.Printf("[INFO] attempt %s linked via %s", attemptID, channel)
	metrics.LinkAcks.WithLabelValues(string(channel)).Inc()
	metrics.LinkAttempts.WithLabelValues(string(model.OutcomeLinked)).Inc()

	// Stopping the poller cancels the poll loop's context, which may be ctx.
	refreshCtx := context.WithoutCancel(ctx)
	if g.onAck != nil {
		g.onAck(attemptID)
	}
	if _, err := g.store.RefreshProfile(refreshCtx); err != nil {
		log.Printf("[WARN] refresh after link: %v", err)
	}
	g.present(notifier.Event{Type: notifier.EventView, Text: notifier.ViewAccount})
	if g.settle > 0 {
		g.sleep(g.settle)
	}
	g.present(notifier.Event{Type: notifier.EventScroll, Text: notifier.SectionBroker})
	g.present(notifier.Event{Type: notifier.EventNotify, Text: message})

	if err := g.rec.RecordAttempt(&recorder.AttemptEvent{
		AttemptID: attemptID,
		Outcome:   model.OutcomeLinked,
		Channel:   channel,
	}); err != nil {
		log.Printf("[ERROR] record link attempt: %v", err)
	}
	return true
}

func (g *Gate) present(evt notifier.Event) {
	if g.ui == nil {
		return
	}
	if err := g.ui.Present(evt); err != nil {
		log.Printf("[WARN] present %s: %v", evt.Type, err)
	}
}
