package linking

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"AngelLink/internal/metrics"
	"AngelLink/internal/model"
	"AngelLink/internal/notifier"
	"AngelLink/internal/recorder"
	"AngelLink/internal/remote"
)

// Watcher polls the profile while a linking attempt is open, for when the
// popup never manages to post its message.
type Watcher struct {
	store    ProfileRefresher
	gate     *Gate
	ui       notifier.Presenter
	rec      recorder.Recorder
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	attemptID string
	deadline  time.Time
	cancel    context.CancelFunc

	loops atomic.Int32
}

func newWatcher(store ProfileRefresher, gate *Gate, ui notifier.Presenter, rec recorder.Recorder, interval time.Duration, now func() time.Time) *Watcher {
	return &Watcher{
		store:    store,
		gate:     gate,
		ui:       ui,
		rec:      rec,
		interval: interval,
		now:      now,
	}
}

// Start begins polling for attemptID until deadline. Any previous poller is
// stopped first.
func (w *Watcher) Start(attemptID string, deadline time.Time) {
	ctx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	w.stopLocked()
	w.attemptID = attemptID
	w.deadline = deadline
	w.cancel = cancel
	w.mu.Unlock()

	w.loops.Add(1)
	go w.loop(ctx)
}

// Stop cancels the poller. A tick already in flight may finish, but it can no
// longer acknowledge anything.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

// StopAttempt stops the poller only if it still belongs to attemptID.
func (w *Watcher) StopAttempt(attemptID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.attemptID == attemptID {
		w.stopLocked()
	}
}

func (w *Watcher) stopLocked() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.attemptID = ""
	w.deadline = time.Time{}
}

// Running reports whether a poller is armed.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// Loops reports how many poll goroutines are alive.
func (w *Watcher) Loops() int {
	return int(w.loops.Load())
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.loops.Add(-1)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.Tick(ctx) {
				return
			}
		}
	}
}

// Tick runs one check and reports whether polling should go on.
func (w *Watcher) Tick(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	w.mu.Lock()
	id, deadline, armed := w.attemptID, w.deadline, w.cancel != nil
	w.mu.Unlock()
	if !armed {
		return false
	}
	if !w.now().Before(deadline) {
		w.expire(id)
		return false
	}

	snap, err := w.store.RefreshProfile(ctx)
	if err != nil {
		metrics.PollTicks.WithLabelValues("error").Inc()
		if errors.Is(err, remote.ErrSessionExpired) {
			w.StopAttempt(id)
			return false
		}
		if ctx.Err() != nil {
			return false
		}
		log.Printf("[WARN] link poll: %v", err)
		return true
	}
	// The fetch may have outlived the deadline.
	if !w.now().Before(deadline) {
		w.expire(id)
		return false
	}
	if snap.AngelLinked() {
		metrics.PollTicks.WithLabelValues("linked").Inc()
		w.gate.Acknowledge(ctx, id, model.ChannelPoll, "Angel account linked.")
		return false
	}
	metrics.PollTicks.WithLabelValues("pending").Inc()
	return true
}

// expire ends the attempt's polling with an explicit, non-error status.
func (w *Watcher) expire(attemptID string) {
	w.mu.Lock()
	current := w.attemptID == attemptID && w.cancel != nil
	if current {
		w.stopLocked()
	}
	w.mu.Unlock()
	if !current {
		return
	}

	metrics.PollTicks.WithLabelValues("expired").Inc()
	metrics.LinkAttempts.WithLabelValues(string(model.OutcomeAbandoned)).Inc()
	log.Printf("[INFO] attempt %s: stopped waiting for Angel login", attemptID)
	if w.ui != nil {
		if err := w.ui.Present(notifier.Event{
			Type: notifier.EventStatus,
			Text: "Stopped waiting for the Angel login. Click Link again if you still want to connect.",
		}); err != nil {
			log.Printf("[WARN] present status: %v", err)
		}
	}
	if err := w.rec.RecordAttempt(&recorder.AttemptEvent{
		AttemptID: attemptID,
		Outcome:   model.OutcomeAbandoned,
	}); err != nil {
		log.Printf("[ERROR] record link attempt: %v", err)
	}
}
