package llm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// FakeStep scripts one physical call of a FakeClient.
type FakeStep struct {
	Reply Reply
	Err   error
}

// FakeClient returns scripted replies for offline runs and tests. Once the
// script is exhausted it falls back to a deterministic echo reply, so it
// can also stand in for the real backend end to end.
type FakeClient struct {
	mu     sync.Mutex
	script []FakeStep
	pos    int

	// Delay stalls every call, useful for exercising concurrency bounds.
	Delay time.Duration

	calls       atomic.Int64
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// NewFakeClient builds a fake that plays steps in order.
func NewFakeClient(steps ...FakeStep) *FakeClient {
	return &FakeClient{script: steps}
}

func (f *FakeClient) Name() string { return "fake" }
func (f *FakeClient) Close() error { return nil }

// Calls reports the number of physical calls made so far.
func (f *FakeClient) Calls() int64 { return f.calls.Load() }

// MaxInFlight reports the highest number of concurrently running calls
// observed over the client's lifetime.
func (f *FakeClient) MaxInFlight() int32 { return f.maxInFlight.Load() }

func (f *FakeClient) Generate(ctx context.Context, req Request) (Reply, error) {
	f.calls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxInFlight.Load()
		if cur <= seen || f.maxInFlight.CompareAndSwap(seen, cur) {
			break
		}
	}

	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return Reply{}, ctx.Err()
		case <-time.After(f.Delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pos < len(f.script) {
		step := f.script[f.pos]
		f.pos++
		return step.Reply, step.Err
	}
	return Reply{
		Content: echoContent(req),
		Usage:   Usage{PromptTokens: req.Len() / 4, OutputTokens: 64, TotalTokens: req.Len()/4 + 64},
	}, nil
}

// echoContent produces a stable stand-in response derived from the request.
func echoContent(req Request) string {
	tail := req.Prompt
	if len(tail) > 280 {
		tail = tail[len(tail)-280:]
	}
	return fmt.Sprintf("Understood. Responding in the requested voice.\n\n%s\n\n"+
		"This placeholder reply was produced offline.", tail)
}
