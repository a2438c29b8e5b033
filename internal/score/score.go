// Package score measures how closely a piece of generated text matches a
// target behavioral profile across five independent dimensions. Evaluation
// is pure: no I/O, no randomness, identical inputs give identical output.
package score

import (
	"fmt"
	"strings"
)

type Dimension string

const (
	DimTone      Dimension = "tone"
	DimApproach  Dimension = "approach"
	DimCadence   Dimension = "cadence"
	DimLexical   Dimension = "lexical"
	DimStructure Dimension = "structure"
)

// Dimensions is the canonical evaluation order. Ties in the weakest-dimension
// search resolve to the earliest entry.
var Dimensions = []Dimension{DimTone, DimApproach, DimCadence, DimLexical, DimStructure}

// Target is the scoring view of a behavioral profile. All pattern slices
// must already be lowercased; Compile in the profile package takes care of
// that for catalog profiles.
type Target struct {
	Weights map[Dimension]float64

	Tone         []string // tonal phrases
	Intensifiers []string // emphasis markers boosting the tone dimension
	Approach     []string // strategy/approach phrases
	Cadence      []string // pacing markers
	Keywords     []string // profile vocabulary for the lexical dimension

	// Trait markers backing the structure dimension.
	DecisionMarkers []string
	VoiceMarkers    []string

	// MinLength is the character count under which the floor penalty
	// scales every dimension down.
	MinLength int
}

// Breakdown is the result of one evaluation. Dimension values and Overall
// are always within [0,1].
type Breakdown struct {
	Tone      float64 `json:"tone"`
	Approach  float64 `json:"approach"`
	Cadence   float64 `json:"cadence"`
	Lexical   float64 `json:"lexical"`
	Structure float64 `json:"structure"`

	Overall float64   `json:"overall"`
	Weakest Dimension `json:"weakest"`

	Evidence []string `json:"evidence,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Of returns the score of a single dimension.
func (b Breakdown) Of(d Dimension) float64 {
	switch d {
	case DimTone:
		return b.Tone
	case DimApproach:
		return b.Approach
	case DimCadence:
		return b.Cadence
	case DimLexical:
		return b.Lexical
	case DimStructure:
		return b.Structure
	}
	return 0
}

// Map returns the per-dimension scores keyed by dimension name.
func (b Breakdown) Map() map[Dimension]float64 {
	out := make(map[Dimension]float64, len(Dimensions))
	for _, d := range Dimensions {
		out[d] = b.Of(d)
	}
	return out
}

func (b *Breakdown) set(d Dimension, v float64) {
	switch d {
	case DimTone:
		b.Tone = v
	case DimApproach:
		b.Approach = v
	case DimCadence:
		b.Cadence = v
	case DimLexical:
		b.Lexical = v
	case DimStructure:
		b.Structure = v
	}
}

// Evaluate scores content against a target. Empty content yields an
// all-zero breakdown with the canonical first dimension as weakest.
func Evaluate(content string, t Target) Breakdown {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return Breakdown{
			Weakest:  Dimensions[0],
			Warnings: []string{"empty content"},
		}
	}

	lower := strings.ToLower(content)
	words := len(strings.Fields(lower))

	var b Breakdown
	b.Tone = toneScore(lower, words, t, &b)
	b.Approach = approachScore(lower, words, t, &b)
	b.Cadence = cadenceScore(lower, words, t, &b)
	b.Lexical = lexicalScore(lower, words, t, &b)
	b.Structure = structureScore(lower, t, &b)

	// Floor penalty: responses under the minimum length cannot reach a
	// full score in any dimension.
	if t.MinLength > 0 && len(trimmed) < t.MinLength {
		scale := float64(len(trimmed)) / float64(t.MinLength)
		for _, d := range Dimensions {
			b.set(d, b.Of(d)*scale)
		}
		b.Evidence = append(b.Evidence, fmt.Sprintf("short response: %d/%d chars", len(trimmed), t.MinLength))
	}

	overall := 0.0
	for _, d := range Dimensions {
		overall += t.Weights[d] * b.Of(d)
	}
	b.Overall = clip(overall)

	b.Weakest = Dimensions[0]
	for _, d := range Dimensions[1:] {
		if b.Of(d) < b.Of(b.Weakest) {
			b.Weakest = d
		}
	}

	for _, d := range Dimensions {
		if b.Of(d) < 0.3 {
			b.Warnings = append(b.Warnings, fmt.Sprintf("%s barely present (%.2f)", d, b.Of(d)))
		}
	}
	if b.Overall < 0.5 {
		b.Warnings = append(b.Warnings, "profile traits largely absent from response")
	}
	return b
}

// toneScore combines tonal phrase density with an emphasis bonus.
func toneScore(lower string, words int, t Target, b *Breakdown) float64 {
	hits := countHits(lower, t.Tone)
	density := capped(float64(hits) / float64(max(words, 1)))

	emphasis := countHits(lower, t.Intensifiers)
	bonus := float64(emphasis) * 0.1
	if bonus > 0.3 {
		bonus = 0.3
	}

	if hits > 0 {
		b.Evidence = append(b.Evidence, fmt.Sprintf("tone phrases: %d hits", hits))
	}
	return clip(density*2 + bonus)
}

// approachScore weighs how many distinct approach phrases appear (coverage)
// against how often they appear (density).
func approachScore(lower string, words int, t Target, b *Breakdown) float64 {
	matched, total := coverage(lower, t.Approach)
	density := capped(float64(total) / float64(max(words, 1)))
	cov := float64(matched) / float64(max(len(t.Approach), 1))

	if matched > 0 {
		b.Evidence = append(b.Evidence, fmt.Sprintf("approach phrases: %d/%d matched", matched, len(t.Approach)))
	}
	return clip(cov*0.7 + density*0.3)
}

// cadenceScore blends sentence-length consistency with pacing-marker density.
func cadenceScore(lower string, words int, t Target, b *Breakdown) float64 {
	lengths := sentenceLengths(lower)
	consistency := 0.0
	if len(lengths) > 0 {
		mean := 0.0
		for _, l := range lengths {
			mean += float64(l)
		}
		mean /= float64(len(lengths))
		variance := 0.0
		for _, l := range lengths {
			d := float64(l) - mean
			variance += d * d
		}
		variance /= float64(len(lengths))
		consistency = 1.0 / (1.0 + variance/100)
	}

	hits := countHits(lower, t.Cadence)
	density := float64(hits) / float64(max(words, 1))

	if hits > 0 {
		b.Evidence = append(b.Evidence, fmt.Sprintf("cadence markers: %d hits", hits))
	}
	return clip(consistency*0.6 + capped(density*10)*0.4)
}

// lexicalScore checks profile vocabulary coverage. Each keyword counts once
// no matter how often it repeats.
func lexicalScore(lower string, words int, t Target, b *Breakdown) float64 {
	found := 0
	for _, kw := range t.Keywords {
		if kw != "" && strings.Contains(lower, kw) {
			found++
		}
	}
	cov := float64(found) / float64(max(len(t.Keywords), 1))
	density := float64(found) / float64(max(words, 1))

	if found > 0 {
		b.Evidence = append(b.Evidence, fmt.Sprintf("keywords matched: %d/%d", found, len(t.Keywords)))
	}
	return clip(cov*0.7 + capped(density*20)*0.3)
}

// structureScore awards half for a decision-style trace and half for a
// communication-voice trace.
func structureScore(lower string, t Target, b *Breakdown) float64 {
	present := 0
	if anyContained(lower, t.DecisionMarkers) {
		present++
		b.Evidence = append(b.Evidence, "decision style reflected")
	}
	if anyContained(lower, t.VoiceMarkers) {
		present++
		b.Evidence = append(b.Evidence, "communication voice reflected")
	}
	return float64(present) / 2
}

// countHits counts non-overlapping occurrences of every pattern.
func countHits(lower string, patterns []string) int {
	total := 0
	for _, p := range patterns {
		if p == "" {
			continue
		}
		total += strings.Count(lower, p)
	}
	return total
}

// coverage returns how many distinct patterns matched and the total hits.
func coverage(lower string, patterns []string) (matched, total int) {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if n := strings.Count(lower, p); n > 0 {
			matched++
			total += n
		}
	}
	return matched, total
}

func anyContained(lower string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// sentenceLengths returns the word count of each sentence, splitting on
// terminal periods only.
func sentenceLengths(text string) []int {
	parts := strings.Split(text, ".")
	lengths := make([]int, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		lengths = append(lengths, len(strings.Fields(p)))
	}
	return lengths
}

func clip(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func capped(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
