package provenance

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FlowSink writes one YAML flow file per run, grouped by profile:
//
//	<root>/<profile_id>/<profile_id>_<scenario_hash>_<timestamp>.flow.yaml
//
// The scenario hash keys runs of the same scenario together across time.
// Files are written to a temp name and renamed so readers never observe
// a partial flow.
type FlowSink struct {
	root string
	log  *zap.Logger
}

func NewFlowSink(root string, log *zap.Logger) *FlowSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &FlowSink{root: root, log: log}
}

func (s *FlowSink) Name() string { return "flow" }

func (s *FlowSink) Persist(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(s.root, rec.ProfileID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("flow sink: %w", err)
	}

	stamp := rec.FinishedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}
	name := fmt.Sprintf("%s_%s_%s.flow.yaml",
		rec.ProfileID, ScenarioDigest(rec.Scenario), stamp.UTC().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	raw, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("flow sink: marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("flow sink: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("flow sink: %w", err)
	}
	s.log.Debug("flow persisted",
		zap.String("run", rec.RunID),
		zap.String("path", path))
	return nil
}

// ScenarioDigest is the short stable hash that groups flow files for one
// scenario.
func ScenarioDigest(scenario string) string {
	sum := md5.Sum([]byte(scenario))
	return hex.EncodeToString(sum[:])[:8]
}
