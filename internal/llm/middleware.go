package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Middleware decorates a Client to inject cross-cutting concerns
// (rate limiting, retries, logging, hooks, etc.).
type Middleware func(Client) Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Client, mws ...Middleware) Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Rate limiting --------

// RateLimit throttles physical calls to rps with the given burst.
// If rps <= 0, the middleware is a no-op.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Client) Client {
		if rps <= 0 {
			return next
		}
		if burst < 1 {
			burst = 1
		}
		return &rateLimited{next: next, lim: rate.NewLimiter(rate.Limit(rps), burst)}
	}
}

type rateLimited struct {
	next Client
	lim  *rate.Limiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error { return c.next.Close() }

func (c *rateLimited) Generate(ctx context.Context, req Request) (Reply, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return Reply{}, err
	}
	return c.next.Generate(ctx, req)
}

// -------- Logging --------

// WithLogging logs request size and errors at debug/warn level. A nil
// logger disables the layer.
func WithLogging(log *zap.Logger) Middleware {
	return func(next Client) Client {
		if log == nil {
			return next
		}
		return &logging{next: next, log: log}
	}
}

type logging struct {
	next Client
	log  *zap.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }

func (l *logging) Generate(ctx context.Context, req Request) (Reply, error) {
	l.log.Debug("oracle request",
		zap.String("client", l.next.Name()),
		zap.Int("bytes", req.Len()))
	reply, err := l.next.Generate(ctx, req)
	if err != nil {
		l.log.Warn("oracle call failed",
			zap.String("client", l.next.Name()),
			zap.String("fault", string(Classify(err))),
			zap.Error(err))
	}
	return reply, err
}

// -------- Per-call timeout --------

// CallTimeout bounds every physical call with its own deadline,
// independent of whatever deadline the caller's context carries.
func CallTimeout(d time.Duration) Middleware {
	return func(next Client) Client {
		if d <= 0 {
			return next
		}
		return &timed{next: next, d: d}
	}
}

type timed struct {
	next Client
	d    time.Duration
}

func (t *timed) Name() string { return t.next.Name() }
func (t *timed) Close() error { return t.next.Close() }

func (t *timed) Generate(ctx context.Context, req Request) (Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Generate(ctx, req)
}
