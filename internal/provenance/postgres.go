package provenance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresSink stores records in a single table, with the scalar columns
// queries filter on plus the full record as JSONB.
type PostgresSink struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresSink(dsn string) (*PostgresSink, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresSink{db: db}, nil
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS attune_runs (
  run_id TEXT PRIMARY KEY,
  profile_id TEXT NOT NULL,
  scenario_hash TEXT NOT NULL,
  status TEXT NOT NULL,
  reason TEXT NOT NULL DEFAULT '',
  best_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  attempts_used INTEGER NOT NULL DEFAULT 0,
  calls BIGINT NOT NULL DEFAULT 0,
  total_tokens BIGINT NOT NULL DEFAULT 0,
  started_at TIMESTAMP WITH TIME ZONE,
  finished_at TIMESTAMP WITH TIME ZONE,
  record JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attune_runs_profile_id ON attune_runs (profile_id);
CREATE INDEX IF NOT EXISTS idx_attune_runs_status ON attune_runs (status);
`)
	})
	return s.schemaErr
}

func (s *PostgresSink) Persist(ctx context.Context, rec *Record) error {
	if err := s.ensureSchema(ctx); err != nil {
		return fmt.Errorf("postgres sink: schema: %w", err)
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("postgres sink: marshal: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO attune_runs (
  run_id, profile_id, scenario_hash, status, reason,
  best_score, attempts_used, calls, total_tokens,
  started_at, finished_at, record
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (run_id)
DO UPDATE SET status=EXCLUDED.status,
  reason=EXCLUDED.reason,
  best_score=EXCLUDED.best_score,
  attempts_used=EXCLUDED.attempts_used,
  calls=EXCLUDED.calls,
  total_tokens=EXCLUDED.total_tokens,
  finished_at=EXCLUDED.finished_at,
  record=EXCLUDED.record`,
		rec.RunID, rec.ProfileID, ScenarioDigest(rec.Scenario), rec.Status, rec.Reason,
		rec.BestScore, rec.AttemptsUsed, rec.Calls, rec.Usage.TotalTokens,
		rec.StartedAt, rec.FinishedAt, blob)
	if err != nil {
		return fmt.Errorf("postgres sink: %w", err)
	}
	return nil
}
