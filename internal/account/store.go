package account

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"AngelLink/internal/model"
	"AngelLink/internal/notifier"
	"AngelLink/internal/remote"

	"github.com/shopspring/decimal"
)

// Backend endpoints used by the store.
const (
	PathProfile    = "/user/profile"
	PathPlanStatus = "/user/plan/status"
	PathFunds      = "/user/angel/funds"
	PathSettings   = "/user/angel/settings"
	PathClientID   = "/user/broker/client-id"
)

var (
	ErrInvalidMargin   = errors.New("margin percent must be between 0 and 100")
	ErrInvalidClientID = errors.New("client id is required")
)

// API is the part of the remote client the store needs.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

type profileResponse struct {
	User model.Snapshot `json:"user"`
}

type fundsResponse struct {
	AvailableMargin decimal.Decimal `json:"availableMargin"`
}

// Store owns the account snapshot. The snapshot is only ever replaced
// wholesale, and it is the single place that updates the display text.
type Store struct {
	api API
	ui  notifier.Presenter
	now func() time.Time

	mu      sync.RWMutex
	snap    *model.Snapshot
	funds   decimal.Decimal
	seq     uint64 // last issued update sequence
	applied uint64 // sequence of the current snapshot
	subs    []func(model.Snapshot)
}

func NewStore(api API, ui notifier.Presenter) *Store {
	return &Store{api: api, ui: ui, now: time.Now}
}

// Subscribe registers fn to run after every snapshot change.
func (s *Store) Subscribe(fn func(model.Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Current returns the last snapshot, if any was fetched.
func (s *Store) Current() (model.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return model.Snapshot{}, false
	}
	return *s.snap, true
}

// Funds returns the last fetched available margin.
func (s *Store) Funds() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.funds
}

// RefreshProfile fetches the profile. On failure the previous snapshot is kept
// and returned together with the error.
func (s *Store) RefreshProfile(ctx context.Context) (model.Snapshot, error) {
	seq := s.nextSeq()

	var resp profileResponse
	if err := s.api.Get(ctx, PathProfile, &resp); err != nil {
		prev, _ := s.Current()
		return prev, fmt.Errorf("refresh profile: %w", err)
	}

	snap := resp.User
	snap.FetchedAt = s.now()
	snap.Provisional = false
	if !s.replace(seq, snap) {
		// A newer update landed while this fetch was in flight.
		cur, _ := s.Current()
		return cur, nil
	}

	if snap.BrokerConnected() {
		if _, err := s.RefreshFunds(ctx); err != nil && !errors.Is(err, remote.ErrSessionExpired) {
			log.Printf("[WARN] funds refresh after profile: %v", err)
		}
	}
	return snap, nil
}

// RefreshPlan fetches the plan status and updates the plan badge. The
// snapshot itself only changes on a profile fetch.
func (s *Store) RefreshPlan(ctx context.Context) (model.PlanInfo, error) {
	var info model.PlanInfo
	if err := s.api.Get(ctx, PathPlanStatus, &info); err != nil {
		return info, fmt.Errorf("refresh plan: %w", err)
	}
	d := model.Display{}
	if cur, ok := s.Current(); ok {
		d = notifier.FormatDisplay(cur)
	}
	badge := notifier.FormatDisplay(model.Snapshot{Plan: info.Plan, Role: info.Role}).PlanBadge
	d.PlanBadge = badge
	s.present(notifier.Event{Type: notifier.EventAccount, Data: d})
	return info, nil
}

// RefreshFunds fetches the available margin.
func (s *Store) RefreshFunds(ctx context.Context) (decimal.Decimal, error) {
	var resp fundsResponse
	if err := s.api.Get(ctx, PathFunds, &resp); err != nil {
		return s.Funds(), fmt.Errorf("refresh funds: %w", err)
	}
	s.mu.Lock()
	s.funds = resp.AvailableMargin
	s.mu.Unlock()
	s.present(notifier.Event{
		Type: notifier.EventFunds,
		Text: notifier.FormatFunds(resp.AvailableMargin),
		Data: resp.AvailableMargin,
	})
	return resp.AvailableMargin, nil
}

// ApplyAngel applies the broker state returned by a linking completion before
// the next authoritative fetch. The result is marked provisional; any profile
// fetch started after this call replaces it.
func (s *Store) ApplyAngel(state model.AngelState) model.Snapshot {
	seq := s.nextSeq()
	snap, _ := s.Current()
	snap.Angel = state
	if state.BrokerConnected {
		snap.Broker.Connected = true
		if snap.Broker.BrokerName == "" {
			snap.Broker.BrokerName = "ANGEL"
		}
	}
	snap.Provisional = true
	s.replace(seq, snap)
	return snap
}

// SetMarginPercent updates the allowed margin and reloads the profile.
func (s *Store) SetMarginPercent(ctx context.Context, pct int) error {
	if pct < 0 || pct > 100 {
		s.alert(ErrInvalidMargin.Error())
		return ErrInvalidMargin
	}
	body := map[string]int{"allowedMarginPercent": pct}
	if err := s.api.Post(ctx, PathSettings, body, nil); err != nil {
		s.alertErr(err, "Could not update the margin setting.")
		return fmt.Errorf("update margin: %w", err)
	}
	_, err := s.RefreshProfile(ctx)
	return err
}

// SetClientID saves the broker client id and reloads the profile.
func (s *Store) SetClientID(ctx context.Context, clientID string) error {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		s.alert(ErrInvalidClientID.Error())
		return ErrInvalidClientID
	}
	body := map[string]string{"clientId": clientID}
	if err := s.api.Post(ctx, PathClientID, body, nil); err != nil {
		s.alertErr(err, "Could not save the client ID.")
		return fmt.Errorf("save client id: %w", err)
	}
	_, err := s.RefreshProfile(ctx)
	return err
}

func (s *Store) nextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// replace installs snap when it is newer than the current snapshot, then
// publishes it outside the lock.
func (s *Store) replace(seq uint64, snap model.Snapshot) bool {
	s.mu.Lock()
	if seq < s.applied {
		s.mu.Unlock()
		return false
	}
	s.applied = seq
	s.snap = &snap
	subs := append([](func(model.Snapshot))(nil), s.subs...)
	s.mu.Unlock()

	s.present(notifier.Event{Type: notifier.EventAccount, Data: notifier.FormatDisplay(snap)})
	for _, fn := range subs {
		fn(snap)
	}
	return true
}

func (s *Store) present(evt notifier.Event) {
	if s.ui == nil {
		return
	}
	if err := s.ui.Present(evt); err != nil {
		log.Printf("[WARN] present %s: %v", evt.Type, err)
	}
}

func (s *Store) alert(msg string) {
	s.present(notifier.Event{Type: notifier.EventAlert, Text: msg})
}

func (s *Store) alertErr(err error, fallback string) {
	if errors.Is(err, remote.ErrSessionExpired) {
		return
	}
	s.alert(remote.UserMessage(err, fallback))
}
