// Package mutate rewrites a request between attempts. Every strategy is
// deterministic: the same request, profile, evaluation, and attempt index
// always produce the same rewrite, so reruns are reproducible.
//
// Rewrites only prepend and append. The previous prompt survives inside
// the new one, which keeps the scenario text byte for byte intact and
// guarantees the prompt never shrinks.
package mutate

import (
	"fmt"
	"strings"

	"attune/internal/llm"
	"attune/internal/profile"
	"attune/internal/score"
)

// Tag names the rewrite strategy applied before an attempt.
type Tag string

const (
	TagToneAmplifier       Tag = "tone_amplifier"
	TagApproachSharpener   Tag = "approach_sharpener"
	TagCadenceSynchronizer Tag = "cadence_synchronizer"
	TagLexicalInfuser      Tag = "lexical_infuser"
	TagStructureFramer     Tag = "structure_framer"
	TagCompositeBooster    Tag = "composite_booster"
	TagSaturationMode      Tag = "saturation_mode"
)

// Mutation records one applied rewrite for the audit trail.
type Mutation struct {
	Tag       Tag             `json:"tag"`
	Dimension score.Dimension `json:"dimension,omitempty"`
	Detail    string          `json:"detail"`
}

// Apply escalates through the ladder: the first rewrite reinforces the
// weakest dimension, the second restates the whole identity, and every
// rewrite after that saturates the prompt with hard style directives.
// attempt is the number of attempts already completed (>= 1).
func Apply(req llm.Request, c *profile.Compiled, eval score.Breakdown, attempt int) (llm.Request, Mutation) {
	switch {
	case attempt <= 1:
		return reinforceDimension(req, c, eval)
	case attempt == 2:
		return compositeBooster(req, c)
	default:
		return saturate(req, c, attempt)
	}
}

func reinforceDimension(req llm.Request, c *profile.Compiled, eval score.Breakdown) (llm.Request, Mutation) {
	dim := pickDimension(eval, c)
	target := c.Target()

	var tag Tag
	var header, suffix string
	switch dim {
	case score.DimTone:
		tag = TagToneAmplifier
		header = fmt.Sprintf("Your last reply drifted from %s's emotional register.", c.Name)
		suffix = fmt.Sprintf("Lean hard into words like %s, intensified with %s.",
			sampleList(target.Tone, 4), sampleList(target.Intensifiers, 2))
	case score.DimApproach:
		tag = TagApproachSharpener
		header = fmt.Sprintf("Your last reply lost %s's way of engaging a problem.", c.Name)
		suffix = fmt.Sprintf("Frame your answer through phrases such as %s.",
			sampleList(target.Approach, 3))
	case score.DimCadence:
		tag = TagCadenceSynchronizer
		header = fmt.Sprintf("Your last reply fell out of %s's rhythm.", c.Name)
		suffix = fmt.Sprintf("Match a %s pacing, keep sentence lengths even, and use connectives like %s.",
			c.Codes[profile.CodeCadence], sampleList(target.Cadence, 3))
	case score.DimLexical:
		tag = TagLexicalInfuser
		header = fmt.Sprintf("Your last reply missed %s's signature vocabulary.", c.Name)
		suffix = fmt.Sprintf("Weave in the words %s naturally, not as a list.",
			sampleList(target.Keywords, 5))
	default:
		tag = TagStructureFramer
		dim = score.DimStructure
		header = fmt.Sprintf("Your last reply was not shaped the way %s argues.", c.Name)
		suffix = fmt.Sprintf("Open by deciding the way a %s thinker would (e.g. %s) and close in your %s voice (e.g. %s).",
			c.Codes[profile.CodeDecision], sampleList(target.DecisionMarkers, 2),
			c.Codes[profile.CodeVoice], sampleList(target.VoiceMarkers, 2))
	}

	out := req
	out.Prompt = header + "\n\n" + req.Prompt + "\n\n" + suffix
	return out, Mutation{
		Tag:       tag,
		Dimension: dim,
		Detail:    fmt.Sprintf("reinforced %s (scored %.2f)", dim, eval.Of(dim)),
	}
}

func compositeBooster(req llm.Request, c *profile.Compiled) (llm.Request, Mutation) {
	header := fmt.Sprintf(
		"Reset and restate who you are before answering.\nYou are %s: %s\nTraits: %s.\nVoice %s, approach %s, cadence %s.",
		c.Name, strings.TrimSpace(c.Persona), strings.Join(c.Traits, ", "),
		c.Codes[profile.CodeTone], c.Codes[profile.CodeApproach], c.Codes[profile.CodeCadence])
	suffix := "This time every aspect must land at once: the emotional register, the way you engage, the rhythm, the vocabulary, and the shape of the argument."

	out := req
	out.Prompt = header + "\n\n" + req.Prompt + "\n\n" + suffix
	out.Directive = appendDirective(req.Directive,
		fmt.Sprintf("Re-anchor fully in the %s identity on every sentence.", c.Name))
	return out, Mutation{
		Tag:    TagCompositeBooster,
		Detail: "restated full identity across all dimensions",
	}
}

func saturate(req llm.Request, c *profile.Compiled, attempt int) (llm.Request, Mutation) {
	target := c.Target()
	header := strings.Join([]string{
		"MANDATORY STYLE DIRECTIVE. Follow every line:",
		fmt.Sprintf("1. Emotional register: use at least three of %s.", sampleList(target.Tone, 6)),
		fmt.Sprintf("2. Engagement: build on phrases like %s.", sampleList(target.Approach, 4)),
		fmt.Sprintf("3. Rhythm: %s pacing, connectives such as %s.", c.Codes[profile.CodeCadence], sampleList(target.Cadence, 3)),
		fmt.Sprintf("4. Vocabulary: include %s.", sampleList(target.Keywords, 6)),
		fmt.Sprintf("5. Shape: decide as %s, close as %s.", c.Codes[profile.CodeDecision], c.Codes[profile.CodeVoice]),
	}, "\n")
	suffix := fmt.Sprintf("Do not paraphrase these requirements or mention them. Embody them. You are %s.", c.Name)

	out := req
	out.Prompt = header + "\n\n" + req.Prompt + "\n\n" + suffix
	out.Directive = appendDirective(req.Directive,
		"Compliance with the style directive is not optional. Satisfy every numbered line.")
	return out, Mutation{
		Tag:    TagSaturationMode,
		Detail: fmt.Sprintf("saturated prompt with style directives (attempt %d)", attempt),
	}
}

// pickDimension prefers the evaluated weakest dimension. When no
// evaluation exists, for instance after a transport failure, it falls
// back to the heaviest-weighted dimension so the rewrite still pushes
// where the profile cares most.
func pickDimension(eval score.Breakdown, c *profile.Compiled) score.Dimension {
	for _, d := range score.Dimensions {
		if eval.Weakest == d {
			return d
		}
	}
	best := score.Dimensions[0]
	weights := c.Target().Weights
	for _, d := range score.Dimensions[1:] {
		if weights[d] > weights[best] {
			best = d
		}
	}
	return best
}

func sampleList(patterns []string, n int) string {
	if n > len(patterns) {
		n = len(patterns)
	}
	quoted := make([]string, n)
	for i := 0; i < n; i++ {
		quoted[i] = `"` + patterns[i] + `"`
	}
	return strings.Join(quoted, ", ")
}

func appendDirective(directive, line string) string {
	if directive == "" {
		return line
	}
	return directive + " " + line
}
