package converge

import (
	"time"

	"attune/internal/llm"
	"attune/internal/mutate"
	"attune/internal/score"
)

// EventKind labels a progress event emitted while a run executes.
type EventKind string

const (
	EventRunStarted      EventKind = "run_started"
	EventAttemptStarted  EventKind = "attempt_started"
	EventAttemptScored   EventKind = "attempt_scored"
	EventAttemptFailed   EventKind = "attempt_failed"
	EventMutationApplied EventKind = "mutation_applied"
	EventRunFinished     EventKind = "run_finished"
)

// Event is one step of a run's progress. Only the fields relevant to its
// kind are set.
type Event struct {
	Kind      EventKind       `json:"kind"`
	RunID     string          `json:"run_id"`
	ProfileID string          `json:"profile_id"`
	Attempt   int             `json:"attempt,omitempty"`
	Score     float64         `json:"score,omitempty"`
	Weakest   score.Dimension `json:"weakest,omitempty"`
	Fault     llm.FaultKind   `json:"fault,omitempty"`
	Mutation  mutate.Tag      `json:"mutation,omitempty"`
	Status    Status          `json:"status,omitempty"`
	At        time.Time       `json:"at"`
}

// Observer receives progress events. It must be fast and non-blocking;
// slow consumers buffer or drop on their own side.
type Observer func(Event)

func (o Observer) emit(ev Event) {
	if o != nil {
		ev.At = time.Now()
		o(ev)
	}
}
