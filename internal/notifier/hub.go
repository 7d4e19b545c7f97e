package notifier

import "sync"

// Hub fans events out to connected dashboard sockets. Slow subscribers drop
// events rather than block the desk.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Subscribers returns the number of connected sockets.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Present broadcasts evt. A popup with no connected dashboard is reported as
// blocked.
func (h *Hub) Present(evt Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if evt.Type == EventPopup && len(h.subs) == 0 {
		return ErrNoAudience
	}
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}
