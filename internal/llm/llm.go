// Package llm talks to the generative backend. A Client performs one
// request/response exchange; middleware layers add retries, rate limiting,
// usage accounting and hooks; Transport absorbs every failure mode into a
// typed Outcome so callers never see a raw error.
package llm

import (
	"context"
)

// Request is one outgoing generation request. Values are immutable once
// built; prompt mutation produces a fresh Request.
type Request struct {
	Prompt      string  `json:"prompt"`
	Directive   string  `json:"directive,omitempty"` // system-level framing
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Len reports the combined text size of the request, used by callers that
// track prompt growth across mutations.
func (r Request) Len() int { return len(r.Prompt) + len(r.Directive) }

// Usage carries the backend's token accounting for one exchange.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns the element-wise sum of two usage records.
func (u Usage) Add(v Usage) Usage {
	u.PromptTokens += v.PromptTokens
	u.OutputTokens += v.OutputTokens
	u.TotalTokens += v.TotalTokens
	return u
}

// Reply is a raw backend response before transport classification.
type Reply struct {
	Content string
	Usage   Usage
}

// Client is the minimal generation contract. Implementations must be safe
// for concurrent use.
type Client interface {
	Name() string
	Generate(ctx context.Context, req Request) (Reply, error)
	Close() error
}
