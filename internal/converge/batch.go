package converge

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pair is one batch entry.
type Pair struct {
	ProfileID string `json:"profile_id" yaml:"profile_id"`
	Scenario  string `json:"scenario" yaml:"scenario"`
}

// BatchSpec runs many pairs under a concurrency bound. Overrides apply
// to every pair in the batch.
type BatchSpec struct {
	Pairs         []Pair
	MaxConcurrent int

	MaxAttempts int
	Threshold   float64
	Template    string
	Observer    Observer
}

// RunBatch executes every pair and returns results in submission order.
// At most MaxConcurrent runs are in flight at once. A panic inside one
// run becomes an error-status result for that pair only; siblings are
// never affected.
func (c *Controller) RunBatch(ctx context.Context, spec BatchSpec) []*Result {
	n := len(spec.Pairs)
	out := make([]*Result, n)
	if n == 0 {
		return out
	}
	workers := spec.MaxConcurrent
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	c.log.Info("batch started",
		zap.Int("pairs", n),
		zap.Int("max_concurrent", workers))

	type task struct {
		idx  int
		pair Pair
	}
	type done struct {
		idx int
		res *Result
	}
	tasks := make(chan task, n)
	results := make(chan done, n)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for t := range tasks {
				results <- done{t.idx, c.runIsolated(ctx, RunSpec{
					ProfileID:   t.pair.ProfileID,
					Scenario:    t.pair.Scenario,
					MaxAttempts: spec.MaxAttempts,
					Threshold:   spec.Threshold,
					Template:    spec.Template,
					Observer:    spec.Observer,
				})}
			}
		}()
	}
	for i, p := range spec.Pairs {
		tasks <- task{i, p}
	}
	close(tasks)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Sole writer into the ordered slice.
	succeeded := 0
	for d := range results {
		out[d.idx] = d.res
		if d.res.Succeeded() {
			succeeded++
		}
	}
	c.log.Info("batch finished",
		zap.Int("pairs", n),
		zap.Int("succeeded", succeeded))
	return out
}

// runIsolated converts a panic inside one run into an error-status
// result so sibling runs keep going.
func (c *Controller) runIsolated(ctx context.Context, spec RunSpec) (res *Result) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("run panicked",
				zap.String("profile", spec.ProfileID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			res = &Result{
				RunID:      uuid.NewString(),
				ProfileID:  spec.ProfileID,
				Scenario:   spec.Scenario,
				Status:     StatusError,
				Reason:     fmt.Sprintf("internal failure: %v", r),
				StartedAt:  started,
				FinishedAt: time.Now(),
				Elapsed:    time.Since(started),
			}
		}
	}()
	return c.Run(ctx, spec)
}
