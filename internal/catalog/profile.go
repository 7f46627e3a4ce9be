// Package catalog defines exercise profiles: the angles to measure, the
// phase template that counts repetitions, and the form rules.
package catalog

import (
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/physiopal/internal/angle"
	"github.com/ayusman/physiopal/internal/form"
	"github.com/ayusman/physiopal/internal/landmark"
	"github.com/ayusman/physiopal/internal/rep"
)

// ErrInvalidProfile is returned when a profile cannot drive a session.
var ErrInvalidProfile = rep.ErrInvalidProfile

// AlignmentSignal is the reserved name of the camera alignment angle.
const AlignmentSignal = "alignment"

// Alignment describes the camera placement check. When the angle exceeds
// MaxOffset the subject is not side-on to the camera.
type Alignment struct {
	Definition angle.Definition `yaml:"definition" json:"definition"`
	MaxOffset  float64          `yaml:"max_offset" json:"max_offset"`
}

// DefaultAlignment measures the angle at the nose between both shoulders.
func DefaultAlignment(maxOffset float64) *Alignment {
	return &Alignment{
		Definition: angle.Definition{
			Name:   AlignmentSignal,
			Vertex: landmark.Nose,
			A:      landmark.LeftShoulder,
			B:      landmark.RightShoulder,
		},
		MaxOffset: maxOffset,
	}
}

// Profile is one exercise at one difficulty level.
type Profile struct {
	Name        string             `yaml:"name" json:"name"`
	Level       string             `yaml:"level" json:"level"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Definitions []angle.Definition `yaml:"definitions" json:"definitions"`
	Template    rep.Template       `yaml:"template" json:"template"`
	Rules       []form.Spec        `yaml:"rules" json:"rules"`
	Alignment   *Alignment         `yaml:"alignment,omitempty" json:"alignment,omitempty"`

	// AttemptRules are checked against attempts abandoned before the
	// cycle closed. Only violations are reported.
	AttemptRules []form.Spec `yaml:"attempt_rules,omitempty" json:"attempt_rules,omitempty"`
}

// Key identifies the profile as name/level.
func (p Profile) Key() string {
	if p.Level == "" {
		return p.Name
	}
	return p.Name + "/" + p.Level
}

// Compiled is a validated profile ready for a session.
type Compiled struct {
	Profile Profile

	// Definitions are the profile's definitions followed by the alignment
	// definition, if any.
	Definitions []angle.Definition
	Rules       []form.Rule
	Live        []form.Rule
	Attempt     []form.Rule
}

// Compile validates the profile and builds its rules.
func (p Profile) Compile() (*Compiled, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("profile has no name: %w", ErrInvalidProfile)
	}
	if len(p.Definitions) == 0 {
		return nil, fmt.Errorf("profile %s has no angle definitions: %w", p.Key(), ErrInvalidProfile)
	}

	names := make(map[string]bool, len(p.Definitions)+1)
	defs := make([]angle.Definition, 0, len(p.Definitions)+1)
	for _, d := range p.Definitions {
		if err := checkDefinition(d); err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.Key(), err)
		}
		if d.Name == AlignmentSignal {
			return nil, fmt.Errorf("profile %s: definition name %q is reserved: %w", p.Key(), d.Name, ErrInvalidProfile)
		}
		if names[d.Name] {
			return nil, fmt.Errorf("profile %s: duplicate definition %q: %w", p.Key(), d.Name, ErrInvalidProfile)
		}
		names[d.Name] = true
		defs = append(defs, d)
	}

	if err := p.Template.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.Key(), err)
	}
	if !names[p.Template.Signal] {
		return nil, fmt.Errorf("profile %s: template signal %q is not defined: %w", p.Key(), p.Template.Signal, ErrInvalidProfile)
	}

	for _, s := range append(append([]form.Spec(nil), p.Rules...), p.AttemptRules...) {
		if s.Signal != "" && !names[s.Signal] {
			return nil, fmt.Errorf("profile %s: rule %q uses undefined signal %q: %w", p.Key(), s.Name, s.Signal, ErrInvalidProfile)
		}
	}
	rules, err := form.Compile(p.Rules, p.Template)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.Key(), err)
	}
	attempt, err := form.Compile(p.AttemptRules, p.Template)
	if err != nil {
		return nil, fmt.Errorf("profile %s attempt rules: %w", p.Key(), err)
	}
	for _, r := range attempt {
		if r.Live() {
			return nil, fmt.Errorf("profile %s: attempt rule %q cannot be live: %w", p.Key(), r.Name(), ErrInvalidProfile)
		}
	}

	if a := p.Alignment; a != nil {
		if err := checkDefinition(a.Definition); err != nil {
			return nil, fmt.Errorf("profile %s alignment: %w", p.Key(), err)
		}
		if math.IsNaN(a.MaxOffset) || a.MaxOffset <= 0 || a.MaxOffset > 180 {
			return nil, fmt.Errorf("profile %s: alignment offset %v out of range: %w", p.Key(), a.MaxOffset, ErrInvalidProfile)
		}
		d := a.Definition
		d.Name = AlignmentSignal
		defs = append(defs, d)
	}

	c := &Compiled{Profile: p, Definitions: defs, Rules: rules, Attempt: attempt}
	for _, r := range rules {
		if r.Live() {
			c.Live = append(c.Live, r)
		}
	}
	return c, nil
}

// Validate reports whether the profile compiles.
func (p Profile) Validate() error {
	_, err := p.Compile()
	return err
}

func checkDefinition(d angle.Definition) error {
	if d.Name == "" {
		return fmt.Errorf("unnamed angle definition: %w", ErrInvalidProfile)
	}
	if d.Vertex.Virtual() {
		return fmt.Errorf("angle %q: vertex cannot be virtual: %w", d.Name, ErrInvalidProfile)
	}
	if d.A == d.B || d.A == d.Vertex || d.B == d.Vertex {
		return fmt.Errorf("angle %q: joints must be distinct: %w", d.Name, ErrInvalidProfile)
	}
	return nil
}

// Parse decodes and validates a YAML profile.
func Parse(data []byte) (Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Marshal encodes a profile as YAML.
func Marshal(p Profile) ([]byte, error) {
	return yaml.Marshal(p)
}
