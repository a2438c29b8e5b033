package llm

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Outcome is the sealed result of one transport exchange: either usable
// content or a classified fault, never both. Transport.Send produces
// exactly one Outcome per call and never returns a Go error.
type Outcome struct {
	OK          bool          `json:"ok"`
	Content     string        `json:"content,omitempty"`
	Fault       FaultKind     `json:"fault,omitempty"`
	FaultDetail string        `json:"fault_detail,omitempty"`
	Latency     time.Duration `json:"latency"`
	Calls       int           `json:"calls"` // physical tries consumed
	Usage       Usage         `json:"usage"`
}

// TransportOptions configures the reliability chain around a raw client.
type TransportOptions struct {
	Retry       RetryPolicy
	RPS         float64
	Burst       int
	CallTimeout time.Duration
	Ledger      *UsageLedger
	Log         *zap.Logger
}

// Transport owns a middleware-wrapped client and absorbs every failure
// mode into an Outcome value.
type Transport struct {
	cli Client
	log *zap.Logger
}

// NewTransport wraps client with retry, rate limiting, usage accounting,
// logging, hooks and a per-call timeout, innermost last.
func NewTransport(client Client, opts TransportOptions) *Transport {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	chain := Wrap(client,
		Retry(opts.Retry),
		RateLimit(opts.RPS, opts.Burst),
		WithUsage(opts.Ledger),
		WithLogging(opts.Log),
		WithHooks(),
		CallTimeout(opts.CallTimeout),
	)
	return &Transport{cli: chain, log: log}
}

// Send performs one exchange. Reliability retries happen inside; the
// returned Outcome is final for this attempt.
func (t *Transport) Send(ctx context.Context, req Request) Outcome {
	start := time.Now()
	var tries atomic.Int32
	ctx = withTryCounter(ctx, &tries)

	reply, err := t.cli.Generate(ctx, req)

	out := Outcome{
		Latency: time.Since(start),
		Calls:   int(tries.Load()),
		Usage:   reply.Usage,
	}
	if err != nil {
		out.Fault = Classify(err)
		out.FaultDetail = err.Error()
		t.log.Debug("send resolved to fault",
			zap.String("fault", string(out.Fault)),
			zap.Int("calls", out.Calls),
			zap.Duration("latency", out.Latency))
		return out
	}
	out.OK = true
	out.Content = reply.Content
	return out
}

// Close releases the underlying client.
func (t *Transport) Close() error { return t.cli.Close() }
