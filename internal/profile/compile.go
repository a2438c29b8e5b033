package profile

import (
	"strings"

	"attune/internal/score"
)

// Compiled pairs a validated profile with its evaluation target. The
// target holds pre-lowercased copies of every pattern so scoring never
// re-normalizes per call.
type Compiled struct {
	*Profile

	target score.Target
}

// Compile validates p and prepares its scoring target.
func Compile(p *Profile) (*Compiled, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	weights := make(map[score.Dimension]float64, len(p.Weights))
	for d, w := range p.Weights {
		weights[d] = w
	}
	return &Compiled{
		Profile: p,
		target: score.Target{
			Weights:         weights,
			Tone:            lowered(p.Patterns[SetTone]),
			Intensifiers:    lowered(p.Patterns[SetIntensifiers]),
			Approach:        lowered(p.Patterns[SetApproach]),
			Cadence:         lowered(p.Patterns[SetCadence]),
			Keywords:        lowered(p.Patterns[SetLexical]),
			DecisionMarkers: lowered(p.Patterns[SetDecision]),
			VoiceMarkers:    lowered(p.Patterns[SetVoice]),
			MinLength:       p.MinLength,
		},
	}, nil
}

// Target returns the scoring view of the profile. The returned value
// shares slices with the compiled form; callers must not mutate them.
func (c *Compiled) Target() score.Target { return c.target }

func lowered(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return out
}
