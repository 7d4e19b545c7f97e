// Package notifiertest provides an in-memory presenter for tests.
package notifiertest

import (
	"sync"

	"AngelLink/internal/notifier"
)

// Memory is a notifier.Presenter that keeps every event it is shown.
type Memory struct {
	mu     sync.Mutex
	events []notifier.Event
	// PopupErr is returned for popup events when set.
	PopupErr error
}

func (r *Memory) Present(evt notifier.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	if evt.Type == notifier.EventPopup {
		return r.PopupErr
	}
	return nil
}

// Events returns a copy of the recorded events.
func (r *Memory) Events() []notifier.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifier.Event(nil), r.events...)
}

// Count returns how many events of type t were recorded.
func (r *Memory) Count(t notifier.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Texts returns the texts of recorded events of type t in order.
func (r *Memory) Texts(t notifier.EventType) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e.Text)
		}
	}
	return out
}
