// Package provenance persists the audit trail of completed runs. A
// record is a plain serializable snapshot: it carries no behavior and no
// references back into the engine, so every sink can store it as-is.
package provenance

import "time"

// Usage totals the token counts a run consumed across all calls.
type Usage struct {
	PromptTokens int64 `yaml:"prompt_tokens" json:"prompt_tokens"`
	OutputTokens int64 `yaml:"output_tokens" json:"output_tokens"`
	TotalTokens  int64 `yaml:"total_tokens" json:"total_tokens"`
}

// Attempt is one step of a run as it happened, including the rewrite
// that preceded it. The first attempt has no mutation.
type Attempt struct {
	Index           int                `yaml:"index" json:"index"`
	Mutation        string             `yaml:"mutation,omitempty" json:"mutation,omitempty"`
	MutationDetail  string             `yaml:"mutation_detail,omitempty" json:"mutation_detail,omitempty"`
	TargetDimension string             `yaml:"target_dimension,omitempty" json:"target_dimension,omitempty"`
	OK              bool               `yaml:"ok" json:"ok"`
	Fault           string             `yaml:"fault,omitempty" json:"fault,omitempty"`
	FaultDetail     string             `yaml:"fault_detail,omitempty" json:"fault_detail,omitempty"`
	Score           float64            `yaml:"score" json:"score"`
	Dimensions      map[string]float64 `yaml:"dimensions,omitempty" json:"dimensions,omitempty"`
	Weakest         string             `yaml:"weakest,omitempty" json:"weakest,omitempty"`
	Warnings        []string           `yaml:"warnings,omitempty" json:"warnings,omitempty"`
	LatencyMS       int64              `yaml:"latency_ms" json:"latency_ms"`
	Calls           int                `yaml:"calls" json:"calls"`
	PromptChars     int                `yaml:"prompt_chars" json:"prompt_chars"`
	ContentChars    int                `yaml:"content_chars" json:"content_chars"`
}

// Record is the durable account of one run.
type Record struct {
	RunID       string `yaml:"run_id" json:"run_id"`
	ProfileID   string `yaml:"profile_id" json:"profile_id"`
	ProfileName string `yaml:"profile_name" json:"profile_name"`
	Scenario    string `yaml:"scenario" json:"scenario"`
	Template    string `yaml:"template,omitempty" json:"template,omitempty"`

	Status string `yaml:"status" json:"status"`
	Reason string `yaml:"reason" json:"reason"`

	Threshold    float64 `yaml:"threshold" json:"threshold"`
	MaxAttempts  int     `yaml:"max_attempts" json:"max_attempts"`
	AttemptsUsed int     `yaml:"attempts_used" json:"attempts_used"`

	BestAttempt    int                `yaml:"best_attempt,omitempty" json:"best_attempt,omitempty"`
	BestScore      float64            `yaml:"best_score" json:"best_score"`
	BestDimensions map[string]float64 `yaml:"best_dimensions,omitempty" json:"best_dimensions,omitempty"`
	BestContent    string             `yaml:"best_content,omitempty" json:"best_content,omitempty"`

	Attempts []Attempt `yaml:"attempts" json:"attempts"`

	StartedAt  time.Time `yaml:"started_at" json:"started_at"`
	FinishedAt time.Time `yaml:"finished_at" json:"finished_at"`
	DurationMS int64     `yaml:"duration_ms" json:"duration_ms"`

	Calls int64 `yaml:"calls" json:"calls"`
	Usage Usage `yaml:"usage" json:"usage"`
}
