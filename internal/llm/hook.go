package llm

import (
	"context"
	"sync/atomic"
)

// Hook observes physical calls. Both methods run on the calling goroutine;
// keep them fast.
type Hook interface {
	Before(ctx context.Context, req Request)
	After(ctx context.Context, reply Reply, err error)
}

type ctxKeyHook struct{}
type ctxKeyTries struct{}

// WithHook attaches a Hook to the context used by Generate.
func WithHook(ctx context.Context, h Hook) context.Context {
	return context.WithValue(ctx, ctxKeyHook{}, h)
}

// HookFrom returns the hook stored in the context, or nil.
func HookFrom(ctx context.Context) Hook {
	if v := ctx.Value(ctxKeyHook{}); v != nil {
		if h, ok := v.(Hook); ok {
			return h
		}
	}
	return nil
}

// WithHooks calls HookFrom(ctx).Before/After around every physical call.
// Place it innermost so retried calls each fire the hook.
func WithHooks() Middleware {
	return func(next Client) Client {
		return &hooked{next: next}
	}
}

type hooked struct{ next Client }

func (h *hooked) Name() string { return h.next.Name() }
func (h *hooked) Close() error { return h.next.Close() }

func (h *hooked) Generate(ctx context.Context, req Request) (Reply, error) {
	if hook := HookFrom(ctx); hook != nil {
		hook.Before(ctx, req)
	}
	reply, err := h.next.Generate(ctx, req)
	if hook := HookFrom(ctx); hook != nil {
		hook.After(ctx, reply, err)
	}
	return reply, err
}

// withTryCounter lets Transport count the physical tries one Send consumed.
func withTryCounter(ctx context.Context, n *atomic.Int32) context.Context {
	return context.WithValue(ctx, ctxKeyTries{}, n)
}

func bumpTries(ctx context.Context) {
	if v := ctx.Value(ctxKeyTries{}); v != nil {
		if n, ok := v.(*atomic.Int32); ok {
			n.Add(1)
		}
	}
}
