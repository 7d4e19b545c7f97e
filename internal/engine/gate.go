package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"AngelLink/internal/metrics"
	"AngelLink/internal/model"
	"AngelLink/internal/notifier"
	"AngelLink/internal/recorder"
	"AngelLink/internal/remote"
)

// Backend endpoints for the two toggle steps.
const (
	PathSettings   = "/user/angel/settings"
	PathAutomation = "/user/broker/automation"
)

// ErrToggleInProgress is returned when a toggle is already running.
var ErrToggleInProgress = errors.New("engine toggle already in progress")

// Decide derives the engine state from a snapshot.
func Decide(s model.Snapshot) model.EngineState {
	st := model.EngineState{
		HasAccess:         s.Plan.Paid() || s.Role == model.RoleAdmin,
		Connected:         s.BrokerConnected(),
		LiveEnabled:       s.Angel.LiveEnabled,
		AutomationEnabled: s.Broker.AutomationEnabled,
	}
	st.Enabled = st.HasAccess && st.LiveEnabled && st.AutomationEnabled
	st.Clickable = st.Connected || st.HasAccess
	return st
}

// Guide answers a toggle attempt before any network call.
func Guide(st model.EngineState) model.Guidance {
	switch {
	case !st.HasAccess && !st.Connected:
		return model.GuidanceNeedAccessAndConnection
	case !st.HasAccess:
		return model.GuidanceNeedAccess
	case !st.Connected:
		return model.GuidanceNeedConnection
	default:
		return model.GuidanceEligible
	}
}

// Poster is the part of the remote client the gate needs.
type Poster interface {
	Post(ctx context.Context, path string, body, out any) error
}

// Refresher reloads the authoritative snapshot.
type Refresher interface {
	RefreshProfile(ctx context.Context) (model.Snapshot, error)
}

// Gate keeps the current engine state and performs toggles.
type Gate struct {
	api   Poster
	store Refresher
	ui    notifier.Presenter
	rec   recorder.Recorder

	mu       sync.Mutex
	state    model.EngineState
	toggling bool
}

func NewGate(api Poster, store Refresher, ui notifier.Presenter, rec recorder.Recorder) *Gate {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Gate{api: api, store: store, ui: ui, rec: rec}
}

// Recompute derives and publishes the state for a new snapshot.
func (g *Gate) Recompute(s model.Snapshot) model.EngineState {
	st := Decide(s)
	g.mu.Lock()
	g.state = st
	g.mu.Unlock()

	if st.Enabled {
		metrics.EngineEnabled.Set(1)
	} else {
		metrics.EngineEnabled.Set(0)
	}
	g.present(notifier.Event{Type: notifier.EventEngine, Data: st})
	return st
}

// State returns the last computed state.
func (g *Gate) State() model.EngineState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Toggle flips the engine. Unless eligible, it returns the guidance without
// any network call. When eligible, the live flag and then the automation flag
// are updated; a failure stops the sequence and leaves local state untouched.
// The new state is whatever the following profile refresh says.
func (g *Gate) Toggle(ctx context.Context) (model.Guidance, error) {
	g.mu.Lock()
	if g.toggling {
		g.mu.Unlock()
		return model.GuidanceEligible, ErrToggleInProgress
	}
	st := g.state
	guidance := Guide(st)
	if guidance != model.GuidanceEligible {
		g.mu.Unlock()
		// An inert control does not even explain itself.
		if st.Clickable {
			g.present(notifier.Event{Type: notifier.EventAlert, Text: notifier.FormatGuidance(guidance)})
		}
		g.record(&recorder.ToggleEvent{Target: !st.Enabled, Guidance: guidance})
		return guidance, nil
	}
	g.toggling = true
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.toggling = false
		g.mu.Unlock()
	}()

	target := !st.Enabled
	if err := g.api.Post(ctx, PathSettings, map[string]bool{"liveEnabled": target}, nil); err != nil {
		return guidance, g.fail(err, target, "Could not update live trading.", "live flag")
	}
	if err := g.api.Post(ctx, PathAutomation, map[string]bool{"enable": target}, nil); err != nil {
		return guidance, g.fail(err, target, "Could not update automation.", "automation flag")
	}

	if _, err := g.store.RefreshProfile(ctx); err != nil {
		log.Printf("[WARN] refresh after engine toggle: %v", err)
	}
	g.record(&recorder.ToggleEvent{Target: target, Guidance: guidance, Success: true})
	return guidance, nil
}

func (g *Gate) fail(err error, target bool, fallback, step string) error {
	if !errors.Is(err, remote.ErrSessionExpired) {
		g.present(notifier.Event{Type: notifier.EventAlert, Text: remote.UserMessage(err, fallback)})
	}
	g.record(&recorder.ToggleEvent{Target: target, Guidance: model.GuidanceEligible, Note: err.Error()})
	return fmt.Errorf("toggle engine: %s: %w", step, err)
}

func (g *Gate) record(evt *recorder.ToggleEvent) {
	if err := g.rec.RecordToggle(evt); err != nil {
		log.Printf("[ERROR] record engine toggle: %v", err)
	}
}

func (g *Gate) present(evt notifier.Event) {
	if g.ui == nil {
		return
	}
	if err := g.ui.Present(evt); err != nil {
		log.Printf("[WARN] present %s: %v", evt.Type, err)
	}
}
