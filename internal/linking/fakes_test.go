package linking

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"AngelLink/internal/model"
	"AngelLink/internal/notifier/notifiertest"
	"AngelLink/internal/session"
)

type fakeAPI struct {
	mu       sync.Mutex
	handlers map[string]func(body any) (any, error)
	calls    []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{handlers: map[string]func(any) (any, error){
		PathLoginLink: func(any) (any, error) {
			return map[string]string{"url": "https://smartapi.example/login"}, nil
		},
		PathComplete: func(any) (any, error) {
			return completeResponse{Angel: model.AngelState{BrokerConnected: true, AllowedMarginPercent: 50}}, nil
		},
	}}
}

func (f *fakeAPI) handle(path string, fn func(body any) (any, error)) {
	f.mu.Lock()
	f.handlers[path] = fn
	f.mu.Unlock()
}

func (f *fakeAPI) Get(_ context.Context, path string, out any) error {
	return f.call(path, nil, out)
}

func (f *fakeAPI) Post(_ context.Context, path string, body, out any) error {
	return f.call(path, body, out)
}

func (f *fakeAPI) call(path string, body, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	fn, ok := f.handlers[path]
	f.mu.Unlock()
	if !ok {
		return nil
	}
	resp, err := fn(body)
	if err != nil {
		return err
	}
	if out == nil || resp == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *fakeAPI) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.calls {
		if p == path {
			n++
		}
	}
	return n
}

type fakeStore struct {
	mu      sync.Mutex
	snap    model.Snapshot
	err     error
	refresh int
	applied []model.AngelState
	onFetch func()
	ctxErrs []error
}

func (f *fakeStore) RefreshProfile(ctx context.Context) (model.Snapshot, error) {
	f.mu.Lock()
	f.refresh++
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	snap, err, hook := f.snap, f.err, f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return snap, err
}

func (f *fakeStore) ApplyAngel(state model.AngelState) model.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, state)
	f.snap.Angel = state
	return f.snap
}

func (f *fakeStore) setSnapshot(s model.Snapshot) {
	f.mu.Lock()
	f.snap = s
	f.mu.Unlock()
}

func (f *fakeStore) contextErrors() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.ctxErrs...)
}

func (f *fakeStore) refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refresh
}

type memCarry struct {
	mu    sync.Mutex
	c     session.Carryover
	saves int
}

func (m *memCarry) SaveCarryover(c session.Carryover) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c = c
	m.saves++
	return nil
}

func (m *memCarry) TakeCarryover() (session.Carryover, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.c
	m.c = session.Carryover{}
	return c, nil
}

func (m *memCarry) ClearCarryover() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c = session.Carryover{}
	return nil
}

func (m *memCarry) pending() session.Carryover {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 9, 15, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	svc   *Service
	api   *fakeAPI
	store *fakeStore
	carry *memCarry
	ui    *notifiertest.Memory
	clock *clock
}

// newHarness builds a service whose poller never fires on its own; tests
// drive it with Tick.
func newHarness() *harness {
	return newHarnessEvery(time.Hour)
}

func newHarnessEvery(interval time.Duration) *harness {
	h := &harness{
		api:   newFakeAPI(),
		store: &fakeStore{},
		carry: &memCarry{},
		ui:    &notifiertest.Memory{},
		clock: newClock(),
	}
	h.svc = NewService(h.api, h.store, h.carry, h.ui, nil, Options{
		Timeout:      120 * time.Second,
		PollInterval: interval,
		Now:          h.clock.Now,
	})
	return h
}

func angel(tokens *model.Tokens) model.LinkMessage {
	return model.LinkMessage{Provider: "angel", OK: true, Tokens: tokens}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
