package provenance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleRecord() *Record {
	started := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	return &Record{
		RunID:        "2f1c9a8e-run",
		ProfileID:    "aurora",
		ProfileName:  "Aurora",
		Scenario:     "a fence fell; who pays?",
		Template:     "base",
		Status:       "success",
		Reason:       "threshold reached",
		Threshold:    0.85,
		MaxAttempts:  3,
		AttemptsUsed: 2,
		BestAttempt:  2,
		BestScore:    0.91,
		BestContent:  "A warm reply.",
		Attempts: []Attempt{
			{Index: 1, OK: true, Score: 0.62, Calls: 1},
			{Index: 2, Mutation: "tone_amplifier", TargetDimension: "tone", OK: true, Score: 0.91, Calls: 1},
		},
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		DurationMS: 3000,
		Calls:      2,
		Usage:      Usage{PromptTokens: 120, OutputTokens: 240, TotalTokens: 360},
	}
}

func TestFlowSinkWritesAtomicYAML(t *testing.T) {
	root := t.TempDir()
	sink := NewFlowSink(root, nil)
	rec := sampleRecord()

	require.NoError(t, sink.Persist(context.Background(), rec))

	dir := filepath.Join(root, "aurora")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	name := entries[0].Name()
	assert.True(t, strings.HasPrefix(name, "aurora_"+ScenarioDigest(rec.Scenario)+"_"), name)
	assert.True(t, strings.HasSuffix(name, ".flow.yaml"), name)
	assert.Contains(t, name, "20250314_092656")

	raw, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	var got Record
	require.NoError(t, yaml.Unmarshal(raw, &got))
	assert.Equal(t, rec.RunID, got.RunID)
	assert.Equal(t, rec.Status, got.Status)
	assert.Len(t, got.Attempts, 2)
	assert.Equal(t, "tone_amplifier", got.Attempts[1].Mutation)
}

func TestFlowSinkGroupsByScenario(t *testing.T) {
	assert.Len(t, ScenarioDigest("x"), 8)
	assert.Equal(t, ScenarioDigest("same"), ScenarioDigest("same"))
	assert.NotEqual(t, ScenarioDigest("one"), ScenarioDigest("two"))
}

type failSink struct{ calls int }

func (f *failSink) Name() string                           { return "fail" }
func (f *failSink) Persist(context.Context, *Record) error { f.calls++; return errors.New("boom") }

func TestMultiSinkAttemptsEverySink(t *testing.T) {
	root := t.TempDir()
	failing := &failSink{}
	multi := NewMultiSink(failing, NewFlowSink(root, nil))

	err := multi.Persist(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, failing.calls)

	entries, readErr := os.ReadDir(filepath.Join(root, "aurora"))
	require.NoError(t, readErr)
	assert.Len(t, entries, 1, "flow sink must still persist when a sibling fails")

	assert.Equal(t, "multi[fail,flow]", multi.Name())
}

func TestSanitizeRedactsAndCaps(t *testing.T) {
	rec := sampleRecord()
	rec.BestContent = "before data:image/png;base64,aGVsbG8= after " + strings.Repeat("x", maxStoredContent)
	rec.Scenario = "look at data:audio/ogg;base64,QUJD please"

	rec.Sanitize()

	assert.NotContains(t, rec.BestContent, "base64")
	assert.Contains(t, rec.BestContent, redactedMarker)
	assert.LessOrEqual(t, len(rec.BestContent), maxStoredContent+len(truncatedMarker))
	assert.True(t, strings.HasSuffix(rec.BestContent, truncatedMarker))
	assert.Equal(t, "look at "+redactedMarker+" please", rec.Scenario)
}
