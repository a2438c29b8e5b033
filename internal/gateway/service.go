package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"attune/internal/converge"
	"attune/internal/llm"
	"attune/internal/profile"
	"attune/internal/score"
)

// batchRetention caps how many finished batches the in-memory registry
// remembers. Older entries fall off oldest first.
const batchRetention = 100

// BatchState tracks the lifecycle of an asynchronous batch.
type BatchState string

const (
	BatchRunning BatchState = "running"
	BatchDone    BatchState = "done"
)

// BatchView is the externally visible state of one batch. Results are
// only populated once the batch is done.
type BatchView struct {
	ID         string             `json:"id"`
	State      BatchState         `json:"state"`
	Pairs      []converge.Pair    `json:"pairs"`
	Requested  int                `json:"requested"`
	Succeeded  int                `json:"succeeded"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Results    []*converge.Result `json:"results,omitempty"`
}

// RunRequest shapes one synchronous run. Zero-valued overrides fall back
// to the controller defaults.
type RunRequest struct {
	ProfileID   string  `json:"profile_id"`
	Scenario    string  `json:"scenario"`
	Template    string  `json:"template,omitempty"`
	MaxAttempts int     `json:"max_attempts,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// BatchRequest shapes one asynchronous batch.
type BatchRequest struct {
	Pairs         []converge.Pair `json:"pairs"`
	MaxConcurrent int             `json:"max_concurrent,omitempty"`
	Template      string          `json:"template,omitempty"`
	MaxAttempts   int             `json:"max_attempts,omitempty"`
	Threshold     float64         `json:"threshold,omitempty"`
}

// Service bridges HTTP handlers and the convergence controller. Batches
// run detached from the request that started them and survive until the
// service itself shuts down.
type Service struct {
	ctrl     *converge.Controller
	profiles profile.Store
	ledger   *llm.UsageLedger
	hub      *Hub
	log      *zap.Logger

	defaultConcurrent int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	order   []string
	batches map[string]*BatchView
}

// NewService wires the controller behind the HTTP surface. ledger may be
// nil when usage accounting is disabled.
func NewService(ctrl *converge.Controller, profiles profile.Store, ledger *llm.UsageLedger, hub *Hub, defaultConcurrent int, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if defaultConcurrent < 1 {
		defaultConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		ctrl:              ctrl,
		profiles:          profiles,
		ledger:            ledger,
		hub:               hub,
		log:               log,
		defaultConcurrent: defaultConcurrent,
		ctx:               ctx,
		cancel:            cancel,
		batches:           make(map[string]*BatchView),
	}
}

// Close stops accepting new work and waits for in-flight batches.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Run executes one run synchronously, streaming its progress through the
// hub while the caller waits for the result.
func (s *Service) Run(ctx context.Context, req RunRequest) (*converge.Result, error) {
	if strings.TrimSpace(req.ProfileID) == "" {
		return nil, errors.New("profile_id is required")
	}
	if strings.TrimSpace(req.Scenario) == "" {
		return nil, errors.New("scenario is required")
	}
	res := s.ctrl.Run(ctx, converge.RunSpec{
		ProfileID:   strings.TrimSpace(req.ProfileID),
		Scenario:    req.Scenario,
		Template:    strings.TrimSpace(req.Template),
		MaxAttempts: req.MaxAttempts,
		Threshold:   req.Threshold,
		Observer:    s.hub.Observer(),
	})
	return res, nil
}

// StartBatch validates and launches a batch in the background, returning
// its registry entry immediately.
func (s *Service) StartBatch(req BatchRequest) (*BatchView, error) {
	if len(req.Pairs) == 0 {
		return nil, errors.New("pairs must not be empty")
	}
	for i, p := range req.Pairs {
		if strings.TrimSpace(p.ProfileID) == "" {
			return nil, fmt.Errorf("pairs[%d]: profile_id is required", i)
		}
		if strings.TrimSpace(p.Scenario) == "" {
			return nil, fmt.Errorf("pairs[%d]: scenario is required", i)
		}
	}
	if s.ctx.Err() != nil {
		return nil, errors.New("service is shutting down")
	}

	concurrent := req.MaxConcurrent
	if concurrent < 1 {
		concurrent = s.defaultConcurrent
	}

	view := &BatchView{
		ID:        uuid.NewString(),
		State:     BatchRunning,
		Pairs:     append([]converge.Pair(nil), req.Pairs...),
		Requested: len(req.Pairs),
		StartedAt: time.Now().UTC(),
	}
	s.register(view)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		results := s.ctrl.RunBatch(s.ctx, converge.BatchSpec{
			Pairs:         view.Pairs,
			MaxConcurrent: concurrent,
			MaxAttempts:   req.MaxAttempts,
			Threshold:     req.Threshold,
			Template:      strings.TrimSpace(req.Template),
			Observer:      s.hub.Observer(),
		})
		s.finish(view.ID, results)
	}()

	return s.batchCopy(view), nil
}

// Batches lists registry entries newest first, without per-run results.
func (s *Service) Batches() []*BatchView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*BatchView, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if v, ok := s.batches[s.order[i]]; ok {
			c := s.copyLocked(v)
			c.Results = nil
			out = append(out, c)
		}
	}
	return out
}

// Batch returns one batch with full results.
func (s *Service) Batch(id string) (*BatchView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.batches[strings.TrimSpace(id)]
	if !ok {
		return nil, false
	}
	return s.copyLocked(v), true
}

// Profiles lists the known profile catalog.
func (s *Service) Profiles(ctx context.Context) ([]*profile.Profile, error) {
	return s.profiles.List(ctx)
}

// Profile resolves a single profile by id.
func (s *Service) Profile(ctx context.Context, id string) (*profile.Profile, error) {
	c, err := s.profiles.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Profile, nil
}

// Score evaluates content against a profile without calling the Oracle.
func (s *Service) Score(ctx context.Context, profileID, content string) (score.Breakdown, error) {
	c, err := s.profiles.Get(ctx, profileID)
	if err != nil {
		return score.Breakdown{}, err
	}
	return score.Evaluate(content, c.Target()), nil
}

// Usage returns the transport's usage counters. Without a ledger it
// reports an empty snapshot.
func (s *Service) Usage() llm.UsageSnapshot {
	if s.ledger == nil {
		return llm.UsageSnapshot{}
	}
	return s.ledger.Snapshot()
}

func (s *Service) register(v *BatchView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, v.ID)
	s.batches[v.ID] = v
	for len(s.order) > batchRetention {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.batches, oldest)
	}
}

func (s *Service) finish(id string, results []*converge.Result) {
	succeeded := 0
	for _, r := range results {
		if r != nil && r.Succeeded() {
			succeeded++
		}
	}
	now := time.Now().UTC()

	s.mu.Lock()
	if v, ok := s.batches[id]; ok {
		v.State = BatchDone
		v.Succeeded = succeeded
		v.FinishedAt = &now
		v.Results = results
	}
	s.mu.Unlock()

	s.log.Info("batch finished",
		zap.String("batch_id", id),
		zap.Int("requested", len(results)),
		zap.Int("succeeded", succeeded))
}

func (s *Service) batchCopy(v *BatchView) *BatchView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked(v)
}

// copyLocked shallow-copies a view so handlers never marshal a struct
// the batch goroutine may still be writing.
func (s *Service) copyLocked(v *BatchView) *BatchView {
	c := *v
	if v.FinishedAt != nil {
		t := *v.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
