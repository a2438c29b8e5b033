package score

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTarget() Target {
	return Target{
		Weights: map[Dimension]float64{
			DimTone:      0.25,
			DimApproach:  0.25,
			DimCadence:   0.20,
			DimLexical:   0.15,
			DimStructure: 0.15,
		},
		Tone:            []string{"warm", "care", "compassion", "gentle"},
		Intensifiers:    []string{"deeply", "truly", "!"},
		Approach:        []string{"step by step", "together", "listen"},
		Cadence:         []string{"slowly", "gently", "steadily"},
		Keywords:        []string{"empathy", "support", "trust"},
		DecisionMarkers: []string{"feel", "heart"},
		VoiceMarkers:    []string{"warm", "encourage"},
	}
}

func TestEvaluateEmptyContent(t *testing.T) {
	b := Evaluate("   ", testTarget())

	for _, d := range Dimensions {
		assert.Zero(t, b.Of(d), "dimension %s", d)
	}
	assert.Zero(t, b.Overall)
	assert.Equal(t, DimTone, b.Weakest)
	assert.Contains(t, b.Warnings, "empty content")
}

func TestEvaluateBounds(t *testing.T) {
	contents := []string{
		"warm",
		"warm warm warm warm warm warm warm warm warm warm",
		"!!!!!!!!!! truly deeply truly deeply",
		"We will walk this path together, step by step, with warm care and deep compassion. " +
			"I feel your concern in my heart. Empathy, support and trust guide us gently and slowly.",
		strings.Repeat("empathy support trust warm care together slowly. ", 50),
		"no overlap with the profile vocabulary at all",
	}
	tg := testTarget()
	for _, content := range contents {
		b := Evaluate(content, tg)
		for _, d := range Dimensions {
			v := b.Of(d)
			assert.GreaterOrEqual(t, v, 0.0, "dimension %s for %q", d, content)
			assert.LessOrEqual(t, v, 1.0, "dimension %s for %q", d, content)
		}
		assert.GreaterOrEqual(t, b.Overall, 0.0)
		assert.LessOrEqual(t, b.Overall, 1.0)
	}
}

func TestEvaluateOverallIsWeightedSum(t *testing.T) {
	tg := testTarget()
	content := "With warm care and compassion we move gently, step by step, together. " +
		"I truly feel this matters. Empathy and trust, always."

	b := Evaluate(content, tg)

	want := 0.0
	for _, d := range Dimensions {
		want += tg.Weights[d] * b.Of(d)
	}
	assert.InDelta(t, want, b.Overall, 1e-9)
}

func TestEvaluateIdempotent(t *testing.T) {
	tg := testTarget()
	content := "Warm care, deeply felt. We listen together and move slowly, with empathy and trust."

	first := Evaluate(content, tg)
	second := Evaluate(content, tg)
	assert.Equal(t, first, second)
}

func TestEvaluateWeakestDimension(t *testing.T) {
	tg := testTarget()
	// Tone phrases only; approach, lexical and structure all land on zero,
	// so the earliest zero dimension wins.
	b := Evaluate("warm warm care care compassion gentle warm care", tg)

	require.Zero(t, b.Of(DimApproach))
	assert.Equal(t, DimApproach, b.Weakest)
	for _, d := range Dimensions {
		assert.GreaterOrEqual(t, b.Of(d), b.Of(b.Weakest))
	}
}

func TestEvaluateFloorPenalty(t *testing.T) {
	content := "warm care together slowly empathy" // 33 chars, well formed but short

	full := testTarget()
	floored := testTarget()
	floored.MinLength = 200

	base := Evaluate(content, full)
	short := Evaluate(content, floored)

	scale := float64(len(content)) / 200.0
	for _, d := range Dimensions {
		assert.InDelta(t, base.Of(d)*scale, short.Of(d), 1e-9, "dimension %s", d)
	}
	assert.Less(t, short.Overall, base.Overall)
}

func TestEvaluateEvidenceAndWarnings(t *testing.T) {
	tg := testTarget()

	rich := Evaluate("Warm care and compassion, offered gently and slowly, together, step by step. "+
		"I feel it in my heart. Empathy, support, trust.", tg)
	assert.NotEmpty(t, rich.Evidence)

	poor := Evaluate("The quarterly report shows a flat revenue curve across all regions.", tg)
	assert.NotEmpty(t, poor.Warnings)

	foundLow := false
	for _, w := range poor.Warnings {
		if strings.Contains(w, "barely present") {
			foundLow = true
		}
	}
	assert.True(t, foundLow, "expected a low-dimension warning, got %v", poor.Warnings)
}

func TestEvaluateCaseInsensitive(t *testing.T) {
	tg := testTarget()
	lowerB := Evaluate("warm care empathy together", tg)
	upperB := Evaluate("WARM CARE EMPATHY TOGETHER", tg)
	assert.Equal(t, lowerB, upperB)
}
