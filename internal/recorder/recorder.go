package recorder

import "AngelLink/internal/model"

// AttemptEvent records one step of a linking attempt.
type AttemptEvent struct {
	AttemptID string
	Outcome   model.LinkOutcome
	Channel   model.LinkChannel // empty unless Outcome is LINKED or FAILED
	Note      string
}

// ToggleEvent records a trading engine toggle attempt.
type ToggleEvent struct {
	Target   bool
	Guidance model.Guidance
	Success  bool
	Note     string
}

// Recorder persists desk history for later inspection.
type Recorder interface {
	RecordAttempt(evt *AttemptEvent) error
	RecordToggle(evt *ToggleEvent) error
	Close() error
}
