package llm

import (
	"context"
	"strings"
	"time"
)

// RetryPolicy bounds the physical tries of one Send and shapes the
// per-class backoff between them.
type RetryPolicy struct {
	MaxTries  int                 // physical tries per exchange, min 1
	BaseDelay time.Duration       // backoff unit
	Sleep     func(time.Duration) // nil means time.Sleep
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxTries < 1 {
		p.MaxTries = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.Sleep == nil {
		p.Sleep = time.Sleep
	}
	return p
}

// Retry retries Generate up to the policy budget, classifying each failure.
// Rate-limited calls back off exponentially (the caller is being throttled);
// timeouts, connection failures and empty replies back off linearly;
// malformed requests abort immediately. If the context is canceled, it
// stops right away.
func Retry(p RetryPolicy) Middleware {
	p = p.normalized()
	return func(next Client) Client {
		return &retrying{next: next, p: p}
	}
}

type retrying struct {
	next Client
	p    RetryPolicy
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) Generate(ctx context.Context, req Request) (Reply, error) {
	var last *FaultError
	for try := 0; try < r.p.MaxTries; try++ {
		bumpTries(ctx)
		reply, err := r.next.Generate(ctx, req)
		if err == nil {
			if strings.TrimSpace(reply.Content) != "" {
				return reply, nil
			}
			// A well-formed response with no text is a soft failure.
			last = fault(FaultEmptyContent, ErrEmptyContent)
		} else {
			kind := Classify(err)
			last = fault(kind, err)
			if !kind.Retryable() {
				return Reply{}, last
			}
		}
		select {
		case <-ctx.Done():
			return Reply{}, ctx.Err()
		default:
		}
		if try == r.p.MaxTries-1 {
			break
		}
		r.p.Sleep(backoff(last.Kind, r.p.BaseDelay, try))
	}
	return Reply{}, last
}

// backoff returns the wait before try+1. try is zero-based.
func backoff(kind FaultKind, base time.Duration, try int) time.Duration {
	if kind == FaultRateLimited {
		return base * time.Duration(1<<try)
	}
	return base * time.Duration(try+1)
}
