package linking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"

	"AngelLink/internal/metrics"
	"AngelLink/internal/model"
	"AngelLink/internal/notifier"
	"AngelLink/internal/recorder"
	"AngelLink/internal/remote"
	"AngelLink/internal/session"
)

// Backend endpoints used while linking.
const (
	PathLoginLink = "/user/angel/login-link"
	PathComplete  = "/user/angel/complete"
	PathTokens    = "/user/angel/tokens/"
)

var (
	ErrLinkRejected = errors.New("angel login reported failure")
	ErrNoTokens     = errors.New("no valid tokens received")
)

// API is the part of the remote client linking needs.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// Snapshots is the part of the account store linking needs.
type Snapshots interface {
	ProfileRefresher
	ApplyAngel(state model.AngelState) model.Snapshot
}

// Carryovers persists linking results that have not been completed yet.
type Carryovers interface {
	SaveCarryover(c session.Carryover) error
	TakeCarryover() (session.Carryover, error)
	ClearCarryover() error
}

type completeResponse struct {
	Angel model.AngelState `json:"angel"`
}

type tokensResponse struct {
	Tokens *model.Tokens `json:"tokens"`
}

// Resolver turns whatever evidence the popup delivered into one outcome.
type Resolver struct {
	api   API
	store Snapshots
	gate  *Gate
	carry Carryovers
	ui    notifier.Presenter
	rec   recorder.Recorder

	// onFailure ends polling after the popup itself reported failure.
	onFailure func(attemptID string)
}

// Resolve handles one link message for attemptID. It returns true when this
// call acknowledged the attempt. Duplicates that lose the race return false
// without an error.
func (r *Resolver) Resolve(ctx context.Context, attemptID string, msg model.LinkMessage, resumed bool) (bool, error) {
	if !msg.FromAngel() {
		log.Printf("[INFO] ignoring link message from provider %q", msg.Provider)
		return false, nil
	}
	if r.gate.Settled(attemptID) {
		log.Printf("[INFO] attempt %s already settled, dropping duplicate link message", attemptID)
		metrics.LinkAckDuplicates.Inc()
		return false, nil
	}
	if !msg.OK {
		text := msg.Message
		if text == "" {
			text = "Angel login failed."
		}
		r.alert(text)
		r.fail(attemptID, "", text)
		if r.onFailure != nil {
			r.onFailure(attemptID)
		}
		return false, fmt.Errorf("%w: %s", ErrLinkRejected, text)
	}

	tokens := msg.Tokens
	switch {
	case tokens.HasDirect():
		channel := model.ChannelDirect
		if resumed {
			channel = model.ChannelCarryover
		}
		return r.complete(ctx, attemptID, *tokens, channel, !resumed)

	case tokens != nil && tokens.Completed:
		// The backend already holds the link; the acknowledgment refreshes
		// the profile.
		return r.gate.Acknowledge(ctx, attemptID, model.ChannelCompleted, "Angel account linked."), nil

	case tokens != nil && tokens.TokenID != "":
		return r.resolveHandle(ctx, attemptID, tokens.TokenID, resumed)

	case tokens == nil:
		// Success without a payload: trust it, the refresh inside the
		// acknowledgment shows what the backend really recorded.
		return r.gate.Acknowledge(ctx, attemptID, model.ChannelOK, "Angel login finished."), nil

	default:
		r.alert("No valid tokens received from Angel. Please try linking again.")
		r.fail(attemptID, "", ErrNoTokens.Error())
		return false, ErrNoTokens
	}
}

// resolveHandle fetches the bundle a tokenId points to and completes with it.
// A failed lookup ends the attempt; there is no automatic retry.
func (r *Resolver) resolveHandle(ctx context.Context, attemptID, tokenID string, resumed bool) (bool, error) {
	if !resumed {
		r.save(session.Carryover{TokenID: tokenID})
	}

	var resp tokensResponse
	if err := r.api.Get(ctx, PathTokens+url.PathEscape(tokenID), &resp); err != nil {
		if errors.Is(err, remote.ErrSessionExpired) {
			return false, err
		}
		r.alert("Could not retrieve your Angel tokens. Please click Link again.")
		r.fail(attemptID, model.ChannelTokenID, err.Error())
		r.clear()
		return false, fmt.Errorf("fetch tokens: %w", err)
	}
	if !resp.Tokens.HasDirect() {
		r.alert("No valid tokens received from Angel. Please try linking again.")
		r.fail(attemptID, model.ChannelTokenID, ErrNoTokens.Error())
		r.clear()
		return false, ErrNoTokens
	}

	bundle := *resp.Tokens
	bundle.TokenID = tokenID
	channel := model.ChannelTokenID
	if resumed {
		channel = model.ChannelCarryover
	}
	return r.complete(ctx, attemptID, bundle, channel, false)
}

// complete sends the bundle to the backend, applies the returned broker state
// provisionally and acknowledges. The bundle is persisted first so an
// interrupted completion can resume at next startup.
func (r *Resolver) complete(ctx context.Context, attemptID string, tokens model.Tokens, channel model.LinkChannel, persist bool) (bool, error) {
	if persist {
		r.save(session.Carryover{Tokens: &tokens})
	}

	body := tokens
	body.Completed = false
	var resp completeResponse
	if err := r.api.Post(ctx, PathComplete, body, &resp); err != nil {
		if errors.Is(err, remote.ErrSessionExpired) {
			return false, err
		}
		r.alert(remote.UserMessage(err, "Angel linking failed. Please try again."))
		r.fail(attemptID, channel, err.Error())
		var re *remote.Error
		if errors.As(err, &re) && re.Type != remote.RequestErrorT {
			r.clear()
		}
		return false, fmt.Errorf("complete link: %w", err)
	}
	r.clear()

	r.store.ApplyAngel(resp.Angel)
	return r.gate.Acknowledge(ctx, attemptID, channel, "Angel account linked."), nil
}

func (r *Resolver) save(c session.Carryover) {
	if r.carry == nil {
		return
	}
	if err := r.carry.SaveCarryover(c); err != nil {
		log.Printf("[ERROR] save pending link: %v", err)
	}
}

func (r *Resolver) clear() {
	if r.carry == nil {
		return
	}
	if err := r.carry.ClearCarryover(); err != nil {
		log.Printf("[ERROR] clear pending link: %v", err)
	}
}

func (r *Resolver) alert(text string) {
	if r.ui == nil {
		return
	}
	if err := r.ui.Present(notifier.Event{Type: notifier.EventAlert, Text: text}); err != nil {
		log.Printf("[WARN] present alert: %v", err)
	}
}

func (r *Resolver) fail(attemptID string, channel model.LinkChannel, note string) {
	metrics.LinkAttempts.WithLabelValues(string(model.OutcomeFailed)).Inc()
	if err := r.rec.RecordAttempt(&recorder.AttemptEvent{
		AttemptID: attemptID,
		Outcome:   model.OutcomeFailed,
		Channel:   channel,
		Note:      note,
	}); err != nil {
		log.Printf("[ERROR] record link attempt: %v", err)
	}
}
