package converge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"attune/internal/llm"
	"attune/internal/mutate"
	"attune/internal/profile"
	"attune/internal/provenance"
	"attune/internal/score"
)

const (
	defaultMaxAttempts = 3
	defaultThreshold   = 0.85

	persistTimeout = 10 * time.Second
)

// Oracle is the transport contract the controller depends on. Send
// absorbs every failure into the Outcome; it never returns an error.
type Oracle interface {
	Send(ctx context.Context, req llm.Request) llm.Outcome
}

// Deps are the controller's collaborators, injected at construction.
type Deps struct {
	Profiles profile.Store
	Oracle   Oracle
	Sink     provenance.Sink // optional; nil disables persistence
	Log      *zap.Logger     // optional

	// Evaluate overrides the scorer, mainly for tests that script score
	// sequences. Nil means score.Evaluate.
	Evaluate func(content string, target score.Target) score.Breakdown
}

// Options are run defaults; a RunSpec can override budget, threshold and
// template per run.
type Options struct {
	MaxAttempts  int
	Threshold    float64
	AttemptDelay time.Duration
	Template     string
}

func (o Options) normalized() Options {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.Threshold <= 0 {
		o.Threshold = defaultThreshold
	}
	if o.AttemptDelay < 0 {
		o.AttemptDelay = 0
	}
	return o
}

// RunSpec names one (profile, scenario) pair to converge.
type RunSpec struct {
	ProfileID   string
	Scenario    string
	MaxAttempts int     // 0 uses the controller default
	Threshold   float64 // 0 uses the controller default
	Template    string
	Observer    Observer
}

// Controller executes convergence runs. It is safe for concurrent use;
// each Run keeps all mutable state on its own stack.
type Controller struct {
	profiles profile.Store
	oracle   Oracle
	sink     provenance.Sink
	log      *zap.Logger
	evaluate func(content string, target score.Target) score.Breakdown
	opts     Options
}

func New(deps Deps, opts Options) (*Controller, error) {
	if deps.Profiles == nil {
		return nil, errors.New("converge: profile store is required")
	}
	if deps.Oracle == nil {
		return nil, errors.New("converge: oracle is required")
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	eval := deps.Evaluate
	if eval == nil {
		eval = score.Evaluate
	}
	return &Controller{
		profiles: deps.Profiles,
		oracle:   deps.Oracle,
		sink:     deps.Sink,
		log:      log,
		evaluate: eval,
		opts:     opts.normalized(),
	}, nil
}

// Run converges one pair and always returns a terminal Result; failures
// of any kind surface as a Status, never as an error.
//
// Cancellation is cooperative: it is honored at loop boundaries only. An
// in-flight send runs to completion and its result is discarded.
func (c *Controller) Run(ctx context.Context, spec RunSpec) *Result {
	budget := spec.MaxAttempts
	if budget < 1 {
		budget = c.opts.MaxAttempts
	}
	threshold := spec.Threshold
	if threshold <= 0 {
		threshold = c.opts.Threshold
	}
	template := spec.Template
	if template == "" {
		template = c.opts.Template
	}

	res := &Result{
		RunID:       uuid.NewString(),
		ProfileID:   spec.ProfileID,
		Scenario:    spec.Scenario,
		Template:    template,
		Threshold:   threshold,
		MaxAttempts: budget,
		StartedAt:   time.Now(),
	}
	spec.Observer.emit(Event{Kind: EventRunStarted, RunID: res.RunID, ProfileID: res.ProfileID})
	c.log.Info("run started",
		zap.String("run", res.RunID),
		zap.String("profile", spec.ProfileID),
		zap.Int("budget", budget),
		zap.Float64("threshold", threshold))

	if ctx.Err() != nil {
		return c.finish(ctx, spec, res, StatusCanceled, "canceled before start")
	}

	prof, err := c.profiles.Get(ctx, spec.ProfileID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return c.finish(ctx, spec, res, StatusError, fmt.Sprintf("unknown profile %q", spec.ProfileID))
		}
		return c.finish(ctx, spec, res, StatusError, fmt.Sprintf("profile %q unusable: %v", spec.ProfileID, err))
	}
	res.ProfileName = prof.Name

	req, err := profile.SeedRequest(prof, spec.Scenario, template)
	if err != nil {
		return c.finish(ctx, spec, res, StatusError, err.Error())
	}
	target := prof.Target()
	sendCtx := context.WithoutCancel(ctx)

	var pending *mutate.Mutation
	for attempt := 1; attempt <= budget; attempt++ {
		if ctx.Err() != nil {
			return c.finish(ctx, spec, res, StatusCanceled, fmt.Sprintf("canceled before attempt %d", attempt))
		}
		spec.Observer.emit(Event{Kind: EventAttemptStarted, RunID: res.RunID, ProfileID: res.ProfileID, Attempt: attempt})

		rec := AttemptRecord{Index: attempt, Request: req, Mutation: pending, At: time.Now()}
		outcome := c.oracle.Send(sendCtx, req)
		res.Calls += int64(outcome.Calls)
		res.Usage = res.Usage.Add(outcome.Usage)
		if ctx.Err() != nil {
			return c.finish(ctx, spec, res, StatusCanceled,
				fmt.Sprintf("canceled during attempt %d; in-flight result discarded", attempt))
		}
		rec.Outcome = outcome

		if outcome.OK {
			bd := c.evaluate(outcome.Content, target)
			rec.Breakdown = &bd
			rec.Score = bd.Overall
			spec.Observer.emit(Event{Kind: EventAttemptScored, RunID: res.RunID, ProfileID: res.ProfileID,
				Attempt: attempt, Score: bd.Overall, Weakest: bd.Weakest})
			c.log.Debug("attempt scored",
				zap.String("run", res.RunID),
				zap.Int("attempt", attempt),
				zap.Float64("score", bd.Overall),
				zap.String("weakest", string(bd.Weakest)))
		} else {
			spec.Observer.emit(Event{Kind: EventAttemptFailed, RunID: res.RunID, ProfileID: res.ProfileID,
				Attempt: attempt, Fault: outcome.Fault})
			c.log.Debug("attempt failed",
				zap.String("run", res.RunID),
				zap.Int("attempt", attempt),
				zap.String("fault", string(outcome.Fault)))
		}
		res.Attempts = append(res.Attempts, rec)

		if rec.Breakdown != nil && (res.BestAttempt == 0 || rec.Score > res.BestScore) {
			res.BestAttempt = attempt
			res.BestScore = rec.Score
			res.BestContent = outcome.Content
		}
		if rec.Breakdown != nil && rec.Score >= threshold {
			return c.finish(ctx, spec, res, StatusSuccess,
				fmt.Sprintf("converged at attempt %d with score %.2f", attempt, rec.Score))
		}
		if attempt == budget {
			break
		}

		// The next request always derives from the previous one, so the
		// lineage never resets.
		var bd score.Breakdown
		if rec.Breakdown != nil {
			bd = *rec.Breakdown
		}
		next, m := mutate.Apply(req, prof, bd, attempt)
		req = next
		pending = &m
		spec.Observer.emit(Event{Kind: EventMutationApplied, RunID: res.RunID, ProfileID: res.ProfileID,
			Attempt: attempt, Mutation: m.Tag})
		c.log.Debug("mutation applied",
			zap.String("run", res.RunID),
			zap.Int("after_attempt", attempt),
			zap.String("tag", string(m.Tag)))

		if c.opts.AttemptDelay > 0 {
			select {
			case <-ctx.Done():
				// surfaces as a canceled terminal at the top of the loop
			case <-time.After(c.opts.AttemptDelay):
			}
		}
	}

	if best := res.Best(); best != nil {
		return c.finish(ctx, spec, res, StatusFailure,
			fmt.Sprintf("attempt budget spent below threshold: best score %.2f, weakest dimension %s",
				res.BestScore, best.Breakdown.Weakest))
	}
	if len(res.Attempts) == 0 {
		return c.finish(ctx, spec, res, StatusError, "no attempts executed")
	}
	last := res.Attempts[len(res.Attempts)-1]
	return c.finish(ctx, spec, res, StatusError,
		fmt.Sprintf("no valid outcome in %d attempts: last fault %s", len(res.Attempts), last.Outcome.Fault))
}

// finish seals the result, persists successful runs best-effort, and
// emits the terminal event. Persistence failures are logged and never
// change the status.
func (c *Controller) finish(ctx context.Context, spec RunSpec, res *Result, status Status, reason string) *Result {
	res.Status = status
	res.Reason = reason
	res.FinishedAt = time.Now()
	res.Elapsed = res.FinishedAt.Sub(res.StartedAt)

	if status == StatusSuccess && c.sink != nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		rec := resultRecord(res)
		rec.Sanitize()
		if err := c.sink.Persist(pctx, rec); err != nil {
			c.log.Warn("provenance persist failed",
				zap.String("run", res.RunID),
				zap.String("sink", c.sink.Name()),
				zap.Error(err))
		} else {
			res.Persisted = true
		}
		cancel()
	}

	c.log.Info("run finished",
		zap.String("run", res.RunID),
		zap.String("profile", res.ProfileID),
		zap.String("status", string(status)),
		zap.Float64("best", res.BestScore),
		zap.Int("attempts", len(res.Attempts)),
		zap.Int64("calls", res.Calls),
		zap.Duration("elapsed", res.Elapsed),
		zap.String("reason", reason))
	spec.Observer.emit(Event{Kind: EventRunFinished, RunID: res.RunID, ProfileID: res.ProfileID,
		Score: res.BestScore, Status: status})
	return res
}
