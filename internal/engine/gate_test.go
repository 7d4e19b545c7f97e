package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"AngelLink/internal/model"
	"AngelLink/internal/notifier"
	"AngelLink/internal/notifier/notifiertest"
	"AngelLink/internal/remote"
)

type call struct {
	path string
	body map[string]bool
}

type fakeAPI struct {
	mu     sync.Mutex
	calls  []call
	failOn string
	err    error
}

func (f *fakeAPI) Post(_ context.Context, path string, body, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{path: path, body: body.(map[string]bool)})
	if path == f.failOn {
		return f.err
	}
	return nil
}

type fakeRefresher struct {
	snap  model.Snapshot
	calls int
}

func (f *fakeRefresher) RefreshProfile(context.Context) (model.Snapshot, error) {
	f.calls++
	return f.snap, nil
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		snap model.Snapshot
		want model.EngineState
	}{
		{
			name: "free user not connected",
			snap: model.Snapshot{Plan: model.PlanFree, Role: model.RoleUser},
			want: model.EngineState{},
		},
		{
			name: "admin on free plan has access",
			snap: model.Snapshot{Plan: model.PlanFree, Role: model.RoleAdmin},
			want: model.EngineState{HasAccess: true, Clickable: true},
		},
		{
			name: "free user connected is clickable without access",
			snap: model.Snapshot{Plan: model.PlanFree, Broker: model.BrokerInfo{Connected: true}},
			want: model.EngineState{Connected: true, Clickable: true},
		},
		{
			name: "angel flag counts as connected",
			snap: model.Snapshot{Plan: model.PlanMonthly, Angel: model.AngelState{BrokerConnected: true}},
			want: model.EngineState{HasAccess: true, Connected: true, Clickable: true},
		},
		{
			name: "paid, live and automation is enabled",
			snap: model.Snapshot{
				Plan:   model.PlanYearly,
				Broker: model.BrokerInfo{Connected: true, AutomationEnabled: true},
				Angel:  model.AngelState{LiveEnabled: true},
			},
			want: model.EngineState{HasAccess: true, Connected: true, LiveEnabled: true, AutomationEnabled: true, Enabled: true, Clickable: true},
		},
		{
			name: "flags without access stay disabled",
			snap: model.Snapshot{
				Plan:   model.PlanFree,
				Broker: model.BrokerInfo{AutomationEnabled: true},
				Angel:  model.AngelState{LiveEnabled: true},
			},
			want: model.EngineState{LiveEnabled: true, AutomationEnabled: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.snap)
			if got != tt.want {
				t.Errorf("Decide() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecide_EnabledIsConjunction(t *testing.T) {
	plans := []model.Plan{model.PlanFree, model.PlanMonthly}
	roles := []model.Role{model.RoleUser, model.RoleAdmin}
	for _, plan := range plans {
		for _, role := range roles {
			for _, live := range []bool{false, true} {
				for _, auto := range []bool{false, true} {
					for _, conn := range []bool{false, true} {
						s := model.Snapshot{
							Plan:   plan,
							Role:   role,
							Broker: model.BrokerInfo{Connected: conn, AutomationEnabled: auto},
							Angel:  model.AngelState{LiveEnabled: live},
						}
						st := Decide(s)
						access := plan != model.PlanFree || role == model.RoleAdmin
						if st.Enabled != (access && live && auto) {
							t.Errorf("%+v: enabled = %v", s, st.Enabled)
						}
						if st.Clickable != (conn || access) {
							t.Errorf("%+v: clickable = %v", s, st.Clickable)
						}
					}
				}
			}
		}
	}
}

func TestGuide(t *testing.T) {
	tests := []struct {
		st   model.EngineState
		want model.Guidance
	}{
		{model.EngineState{}, model.GuidanceNeedAccessAndConnection},
		{model.EngineState{Connected: true}, model.GuidanceNeedAccess},
		{model.EngineState{HasAccess: true}, model.GuidanceNeedConnection},
		{model.EngineState{HasAccess: true, Connected: true}, model.GuidanceEligible},
	}
	for _, tt := range tests {
		if got := Guide(tt.st); got != tt.want {
			t.Errorf("Guide(%+v) = %s, want %s", tt.st, got, tt.want)
		}
	}
}

func eligibleSnapshot(enabled bool) model.Snapshot {
	return model.Snapshot{
		Plan:   model.PlanMonthly,
		Broker: model.BrokerInfo{Connected: true, AutomationEnabled: enabled},
		Angel:  model.AngelState{BrokerConnected: true, LiveEnabled: enabled},
	}
}

func TestToggle_TwoSequentialUpdates(t *testing.T) {
	api := &fakeAPI{}
	ref := &fakeRefresher{snap: eligibleSnapshot(true)}
	ui := &notifiertest.Memory{}
	g := NewGate(api, ref, ui, nil)
	g.Recompute(eligibleSnapshot(false))

	guidance, err := g.Toggle(context.Background())
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if guidance != model.GuidanceEligible {
		t.Fatalf("guidance = %s", guidance)
	}
	if len(api.calls) != 2 {
		t.Fatalf("expected 2 backend calls, got %d", len(api.calls))
	}
	if api.calls[0].path != PathSettings || !api.calls[0].body["liveEnabled"] {
		t.Errorf("first call = %+v", api.calls[0])
	}
	if api.calls[1].path != PathAutomation || !api.calls[1].body["enable"] {
		t.Errorf("second call = %+v", api.calls[1])
	}
	if ref.calls != 1 {
		t.Errorf("expected one profile refresh, got %d", ref.calls)
	}
	// The store would normally feed the refreshed snapshot back in.
	if g.State().Enabled {
		t.Error("state must not change before the refreshed snapshot arrives")
	}
}

func TestToggle_TurnsOffWhenEnabled(t *testing.T) {
	api := &fakeAPI{}
	g := NewGate(api, &fakeRefresher{}, &notifiertest.Memory{}, nil)
	g.Recompute(eligibleSnapshot(true))

	if _, err := g.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	for _, c := range api.calls {
		for k, v := range c.body {
			if v {
				t.Errorf("%s: %s should be false", c.path, k)
			}
		}
	}
}

func TestToggle_FirstFailureStopsSequence(t *testing.T) {
	api := &fakeAPI{
		failOn: PathSettings,
		err:    &remote.Error{Type: remote.ServerErrorT, Status: 400, Message: "Live trading is locked"},
	}
	ref := &fakeRefresher{}
	ui := &notifiertest.Memory{}
	g := NewGate(api, ref, ui, nil)
	before := g.Recompute(eligibleSnapshot(false))

	_, err := g.Toggle(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(api.calls) != 1 {
		t.Fatalf("second update must not run, got %d calls", len(api.calls))
	}
	if ref.calls != 0 {
		t.Errorf("no refresh expected after failure, got %d", ref.calls)
	}
	if g.State() != before {
		t.Errorf("state changed after failure: %+v", g.State())
	}
	alerts := ui.Texts(notifier.EventAlert)
	if len(alerts) != 1 || alerts[0] != "Live trading is locked" {
		t.Errorf("alerts = %v", alerts)
	}
}

func TestToggle_SecondFailure(t *testing.T) {
	api := &fakeAPI{failOn: PathAutomation, err: &remote.Error{Type: remote.RequestErrorT, Err: errors.New("dial tcp")}}
	ui := &notifiertest.Memory{}
	g := NewGate(api, &fakeRefresher{}, ui, nil)
	g.Recompute(eligibleSnapshot(false))

	if _, err := g.Toggle(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(api.calls) != 2 {
		t.Errorf("expected 2 calls, got %d", len(api.calls))
	}
	alerts := ui.Texts(notifier.EventAlert)
	if len(alerts) != 1 || alerts[0] != "Could not update automation." {
		t.Errorf("alerts = %v", alerts)
	}
}

func TestToggle_SessionExpiredIsSilent(t *testing.T) {
	api := &fakeAPI{failOn: PathSettings, err: remote.ErrSessionExpired}
	ui := &notifiertest.Memory{}
	g := NewGate(api, &fakeRefresher{}, ui, nil)
	g.Recompute(eligibleSnapshot(false))

	_, err := g.Toggle(context.Background())
	if !errors.Is(err, remote.ErrSessionExpired) {
		t.Fatalf("err = %v", err)
	}
	if n := ui.Count(notifier.EventAlert); n != 0 {
		t.Errorf("expected no alert, got %d", n)
	}
}

func TestToggle_GuidanceWithoutNetwork(t *testing.T) {
	tests := []struct {
		name      string
		snap      model.Snapshot
		want      model.Guidance
		wantAlert bool
	}{
		{"neither", model.Snapshot{}, model.GuidanceNeedAccessAndConnection, false},
		{"no access", model.Snapshot{Broker: model.BrokerInfo{Connected: true}}, model.GuidanceNeedAccess, true},
		{"no connection", model.Snapshot{Plan: model.PlanQuarterly}, model.GuidanceNeedConnection, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			ui := &notifiertest.Memory{}
			g := NewGate(api, &fakeRefresher{}, ui, nil)
			g.Recompute(tt.snap)

			got, err := g.Toggle(context.Background())
			if err != nil {
				t.Fatalf("Toggle: %v", err)
			}
			if got != tt.want {
				t.Errorf("guidance = %s, want %s", got, tt.want)
			}
			if len(api.calls) != 0 {
				t.Errorf("expected no backend calls, got %d", len(api.calls))
			}
			if alerted := ui.Count(notifier.EventAlert) > 0; alerted != tt.wantAlert {
				t.Errorf("alert shown = %v, want %v", alerted, tt.wantAlert)
			}
		})
	}
}

func TestRecompute_PresentsState(t *testing.T) {
	ui := &notifiertest.Memory{}
	g := NewGate(&fakeAPI{}, &fakeRefresher{}, ui, nil)
	st := g.Recompute(eligibleSnapshot(true))
	if !st.Enabled {
		t.Fatal("expected enabled")
	}
	events := ui.Events()
	if len(events) != 1 || events[0].Type != notifier.EventEngine {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Data.(model.EngineState) != st {
		t.Errorf("presented %+v, want %+v", events[0].Data, st)
	}
}
