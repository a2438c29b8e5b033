package mutate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attune/internal/llm"
	"attune/internal/profile"
	"attune/internal/score"
)

func compiled(t *testing.T) *profile.Compiled {
	t.Helper()
	c, err := profile.Compile(&profile.Profile{
		ID:      "tester",
		Name:    "Tester",
		Persona: "A profile used only in tests.",
		Weights: map[score.Dimension]float64{
			score.DimTone:      0.25,
			score.DimApproach:  0.25,
			score.DimCadence:   0.20,
			score.DimLexical:   0.15,
			score.DimStructure: 0.15,
		},
		Patterns: map[string][]string{
			profile.SetTone:         {"warm", "kind", "gentle", "caring"},
			profile.SetIntensifiers: {"deeply", "truly"},
			profile.SetApproach:     {"i hear", "together we", "let us hold"},
			profile.SetCadence:      {"gently", "one step at a time", "slowly"},
			profile.SetLexical:      {"community", "trust", "healing", "dignity", "safety"},
			profile.SetDecision:     {"protect those", "the human cost"},
			profile.SetVoice:        {"we can", "you are not alone"},
		},
		Codes: map[string]string{
			profile.CodeTone:     "WARM",
			profile.CodeApproach: "CARE",
			profile.CodeCadence:  "gentle_flowing",
			profile.CodeDecision: "heart_centered",
			profile.CodeVoice:    "supportive",
		},
		Traits:    []string{"kind", "patient"},
		MinLength: 100,
	})
	require.NoError(t, err)
	return c
}

func seed(t *testing.T, c *profile.Compiled, scenario string) llm.Request {
	t.Helper()
	req, err := profile.SeedRequest(c, scenario, profile.TemplateBase)
	require.NoError(t, err)
	return req
}

func TestApplyTargetsWeakestDimension(t *testing.T) {
	c := compiled(t)
	req := seed(t, c, "scenario")

	cases := []struct {
		weakest score.Dimension
		tag     Tag
	}{
		{score.DimTone, TagToneAmplifier},
		{score.DimApproach, TagApproachSharpener},
		{score.DimCadence, TagCadenceSynchronizer},
		{score.DimLexical, TagLexicalInfuser},
		{score.DimStructure, TagStructureFramer},
	}
	for _, tc := range cases {
		t.Run(string(tc.weakest), func(t *testing.T) {
			_, m := Apply(req, c, score.Breakdown{Weakest: tc.weakest}, 1)
			assert.Equal(t, tc.tag, m.Tag)
			assert.Equal(t, tc.weakest, m.Dimension)
		})
	}
}

func TestApplyEscalationLadder(t *testing.T) {
	c := compiled(t)
	req := seed(t, c, "scenario")
	eval := score.Breakdown{Weakest: score.DimTone}

	_, first := Apply(req, c, eval, 1)
	assert.Equal(t, TagToneAmplifier, first.Tag)

	_, second := Apply(req, c, eval, 2)
	assert.Equal(t, TagCompositeBooster, second.Tag)

	for attempt := 3; attempt <= 5; attempt++ {
		_, m := Apply(req, c, eval, attempt)
		assert.Equal(t, TagSaturationMode, m.Tag, "attempt %d", attempt)
	}
}

func TestApplyNeverShrinksPrompt(t *testing.T) {
	c := compiled(t)
	req := seed(t, c, "a fence fell; who pays?")
	eval := score.Breakdown{Weakest: score.DimLexical}

	for attempt := 1; attempt <= 4; attempt++ {
		next, _ := Apply(req, c, eval, attempt)
		assert.Greater(t, len(next.Prompt), len(req.Prompt), "attempt %d", attempt)
		assert.Contains(t, next.Prompt, req.Prompt, "previous prompt must survive inside the rewrite")
		req = next
	}
}

func TestApplyPreservesScenarioVerbatim(t *testing.T) {
	c := compiled(t)
	scenario := "Line one of the scenario.\n  Oddly-indented second line?"
	req := seed(t, c, scenario)

	eval := score.Breakdown{Weakest: score.DimCadence}
	for attempt := 1; attempt <= 4; attempt++ {
		req, _ = Apply(req, c, eval, attempt)
		assert.Contains(t, req.Prompt, scenario, "attempt %d", attempt)
	}
}

func TestApplyIsDeterministic(t *testing.T) {
	c := compiled(t)
	req := seed(t, c, "scenario")
	eval := score.Breakdown{Weakest: score.DimStructure, Structure: 0.1}

	for attempt := 1; attempt <= 3; attempt++ {
		a, ma := Apply(req, c, eval, attempt)
		b, mb := Apply(req, c, eval, attempt)
		assert.Equal(t, a, b, "attempt %d", attempt)
		assert.Equal(t, ma, mb, "attempt %d", attempt)
	}
}

func TestApplyDirectiveGrowsOnEscalation(t *testing.T) {
	c := compiled(t)
	req := seed(t, c, "scenario")
	eval := score.Breakdown{Weakest: score.DimTone}

	first, _ := Apply(req, c, eval, 1)
	assert.Equal(t, req.Directive, first.Directive, "dimension rewrite leaves the directive alone")

	second, _ := Apply(first, c, eval, 2)
	assert.Greater(t, len(second.Directive), len(first.Directive))

	third, _ := Apply(second, c, eval, 3)
	assert.Greater(t, len(third.Directive), len(second.Directive))
	assert.Contains(t, third.Directive, "not optional")
}

func TestApplyWithoutEvaluationFallsBackToHeaviestDimension(t *testing.T) {
	c := compiled(t)
	req := seed(t, c, "scenario")

	// A transport failure leaves no breakdown; the rewrite should still
	// target a real dimension instead of guessing blind.
	next, m := Apply(req, c, score.Breakdown{}, 1)
	assert.Equal(t, score.DimTone, m.Dimension)
	assert.Equal(t, TagToneAmplifier, m.Tag)
	assert.Contains(t, next.Prompt, req.Prompt)
}

func TestSampleListCapsAtAvailablePatterns(t *testing.T) {
	got := sampleList([]string{"one", "two"}, 5)
	assert.Equal(t, `"one", "two"`, got)
	assert.Equal(t, 4, strings.Count(got, `"`))
}
