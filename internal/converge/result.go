// Package converge drives the attempt state machine for one (profile,
// scenario) pair: send, evaluate, decide, mutate, repeat, inside a hard
// attempt budget. It owns run outcomes end to end; callers read the
// Result, never an error.
package converge

import (
	"time"

	"attune/internal/llm"
	"attune/internal/mutate"
	"attune/internal/score"
)

// Status is the terminal state of a run.
type Status string

const (
	// StatusSuccess means an attempt met the threshold.
	StatusSuccess Status = "success"
	// StatusFailure means the budget was spent with at least one scored
	// attempt, all below the threshold.
	StatusFailure Status = "failure"
	// StatusError means no attempt ever produced a valid outcome, or the
	// run could not start at all.
	StatusError Status = "error"
	// StatusCanceled means cooperative cancellation ended the run at a
	// loop boundary.
	StatusCanceled Status = "canceled"
)

// AttemptRecord is one attempt exactly as it happened. Records are
// immutable once appended to a result.
type AttemptRecord struct {
	Index     int              `json:"index"`
	Request   llm.Request      `json:"request"`
	Mutation  *mutate.Mutation `json:"mutation,omitempty"` // rewrite that produced Request; nil on the first attempt
	Outcome   llm.Outcome      `json:"outcome"`
	Breakdown *score.Breakdown `json:"breakdown,omitempty"` // nil when the outcome failed
	Score     float64          `json:"score"`
	At        time.Time        `json:"at"`
}

// Result is the full account of one run. It owns its attempt history
// exclusively and is constructed exactly once, at loop termination.
type Result struct {
	RunID       string `json:"run_id"`
	ProfileID   string `json:"profile_id"`
	ProfileName string `json:"profile_name,omitempty"`
	Scenario    string `json:"scenario"`
	Template    string `json:"template,omitempty"`

	Status Status `json:"status"`
	Reason string `json:"reason"`

	Threshold   float64 `json:"threshold"`
	MaxAttempts int     `json:"max_attempts"`

	Attempts    []AttemptRecord `json:"attempts"`
	BestAttempt int             `json:"best_attempt"` // 1-based index into Attempts; 0 when nothing scored
	BestScore   float64         `json:"best_score"`
	BestContent string          `json:"best_content,omitempty"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Elapsed    time.Duration `json:"elapsed"`

	Calls int64     `json:"calls"`
	Usage llm.Usage `json:"usage"`

	Persisted bool `json:"persisted"`
}

// Succeeded reports whether the run converged.
func (r *Result) Succeeded() bool { return r.Status == StatusSuccess }

// Best returns the best-scoring attempt, or nil when no attempt was ever
// scored.
func (r *Result) Best() *AttemptRecord {
	if r.BestAttempt < 1 || r.BestAttempt > len(r.Attempts) {
		return nil
	}
	return &r.Attempts[r.BestAttempt-1]
}
