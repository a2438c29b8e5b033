package llm

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// UsageLedger tracks per-process call counters for telemetry. When a path
// is set, every update also mirrors the snapshot to a JSON file.
type UsageLedger struct {
	mu     sync.Mutex
	path   string
	calls  int64
	faults map[FaultKind]int64
	usage  Usage
}

// UsageSnapshot is a point-in-time copy of the ledger.
type UsageSnapshot struct {
	Calls        int64               `json:"calls"`
	Faults       map[FaultKind]int64 `json:"faults,omitempty"`
	PromptTokens int                 `json:"prompt_tokens"`
	OutputTokens int                 `json:"output_tokens"`
	TotalTokens  int                 `json:"total_tokens"`
	UpdatedAt    string              `json:"updated_at"`
}

// NewUsageLedger creates a ledger. path may be empty for in-memory only.
func NewUsageLedger(path string) *UsageLedger {
	return &UsageLedger{path: path, faults: map[FaultKind]int64{}}
}

func (l *UsageLedger) record(u Usage, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.usage = l.usage.Add(u)
	if err != nil {
		l.faults[Classify(err)]++
	}
	l.flushLocked()
}

// Snapshot returns a copy of the counters.
func (l *UsageLedger) Snapshot() UsageSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *UsageLedger) snapshotLocked() UsageSnapshot {
	faults := make(map[FaultKind]int64, len(l.faults))
	for k, v := range l.faults {
		faults[k] = v
	}
	return UsageSnapshot{
		Calls:        l.calls,
		Faults:       faults,
		PromptTokens: l.usage.PromptTokens,
		OutputTokens: l.usage.OutputTokens,
		TotalTokens:  l.usage.TotalTokens,
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
}

func (l *UsageLedger) flushLocked() {
	if l.path == "" {
		return
	}
	b, err := json.MarshalIndent(l.snapshotLocked(), "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, l.path)
}

// WithUsage records every physical call into the ledger. A nil ledger
// disables the layer.
func WithUsage(l *UsageLedger) Middleware {
	return func(next Client) Client {
		if l == nil {
			return next
		}
		return &metered{next: next, ledger: l}
	}
}

type metered struct {
	next   Client
	ledger *UsageLedger
}

func (m *metered) Name() string { return m.next.Name() }
func (m *metered) Close() error { return m.next.Close() }

func (m *metered) Generate(ctx context.Context, req Request) (Reply, error) {
	reply, err := m.next.Generate(ctx, req)
	m.ledger.record(reply.Usage, err)
	return reply, err
}
