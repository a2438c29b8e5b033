// Package profile defines the behavioral targets a run converges toward
// and the catalog they are loaded from. Profiles are validated once at
// load time and shared read-only across concurrent runs.
package profile

import (
	"errors"
	"fmt"
	"math"

	"attune/internal/score"
)

// ErrNotFound marks an unknown profile id.
var ErrNotFound = errors.New("profile not found")

// Pattern set keys. The sets are opaque configuration: evaluation only
// cares that the required ones exist and are non-empty.
const (
	SetTone         = "tone"
	SetIntensifiers = "tone_intensifiers"
	SetApproach     = "approach"
	SetCadence      = "cadence"
	SetLexical      = "lexical"
	SetDecision     = "decision"
	SetVoice        = "voice"
)

// Categorical code keys.
const (
	CodeTone     = "tone_code"
	CodeApproach = "approach_code"
	CodeCadence  = "cadence_flow"
	CodeDecision = "decision_style"
	CodeVoice    = "communication_tone"
)

// weightEpsilon bounds the allowed drift of the weight sum from 1.
const weightEpsilon = 1e-6

var requiredSets = []string{SetTone, SetApproach, SetCadence, SetLexical, SetDecision, SetVoice}
var requiredCodes = []string{CodeTone, CodeApproach, CodeCadence, CodeDecision, CodeVoice}

// Profile is one behavioral target. Instances are immutable after Validate.
type Profile struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Persona string `yaml:"persona" json:"persona"`

	Weights  map[score.Dimension]float64 `yaml:"weights" json:"weights"`
	Patterns map[string][]string         `yaml:"patterns" json:"patterns"`
	Codes    map[string]string           `yaml:"codes" json:"codes"`
	Traits   []string                    `yaml:"traits" json:"traits"`

	MinLength int `yaml:"min_length" json:"min_length"`
}

// Validate fails fast on any structural hole, so runs never hit a silent
// missing-key fallback.
func (p *Profile) Validate() error {
	if p.ID == "" {
		return errors.New("profile id is empty")
	}
	if p.Name == "" {
		return fmt.Errorf("profile %q: name is empty", p.ID)
	}
	if p.MinLength <= 0 {
		return fmt.Errorf("profile %q: min_length must be positive", p.ID)
	}

	if len(p.Weights) == 0 {
		return fmt.Errorf("profile %q: dimension weights missing", p.ID)
	}
	sum := 0.0
	for d, w := range p.Weights {
		if !knownDimension(d) {
			return fmt.Errorf("profile %q: unknown dimension %q in weights", p.ID, d)
		}
		if w < 0 {
			return fmt.Errorf("profile %q: negative weight for %s", p.ID, d)
		}
		sum += w
	}
	for _, d := range score.Dimensions {
		if _, ok := p.Weights[d]; !ok {
			return fmt.Errorf("profile %q: missing weight for %s", p.ID, d)
		}
	}
	if math.Abs(sum-1) > weightEpsilon {
		return fmt.Errorf("profile %q: weights sum to %.6f, want 1", p.ID, sum)
	}

	for _, set := range requiredSets {
		if len(p.Patterns[set]) == 0 {
			return fmt.Errorf("profile %q: pattern set %q is empty", p.ID, set)
		}
	}
	for _, code := range requiredCodes {
		if p.Codes[code] == "" {
			return fmt.Errorf("profile %q: categorical code %q is empty", p.ID, code)
		}
	}
	return nil
}

func knownDimension(d score.Dimension) bool {
	for _, known := range score.Dimensions {
		if d == known {
			return true
		}
	}
	return false
}
