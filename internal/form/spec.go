package form

import (
	"fmt"
	"math"

	"github.com/ayusman/physiopal/internal/rep"
)

// Kind selects a rule implementation.
type Kind string

const (
	PhaseMinBelow  Kind = "phase_min_below"
	PhaseMinAbove  Kind = "phase_min_above"
	PhaseMaxBelow  Kind = "phase_max_below"
	PhaseMaxAbove  Kind = "phase_max_above"
	RangeBelow     Kind = "range_below"
	RangeAbove     Kind = "range_above"
	HoldBelow      Kind = "hold_below"
	SignalMaxAbove Kind = "signal_max_above"
	Regressed      Kind = "regressed"
	MissedPhase    Kind = "missed_phase"
)

// Spec is the declarative form of a rule, as stored in exercise profiles.
// Limit is in degrees, or seconds for hold_below.
type Spec struct {
	Name     string   `yaml:"name" json:"name"`
	Kind     Kind     `yaml:"kind" json:"kind"`
	Signal   string   `yaml:"signal,omitempty" json:"signal,omitempty"`
	Phase    string   `yaml:"phase,omitempty" json:"phase,omitempty"`
	Exclude  []string `yaml:"exclude_phases,omitempty" json:"exclude_phases,omitempty"`
	Limit    float64  `yaml:"limit" json:"limit"`
	Severity Severity `yaml:"severity" json:"severity"`
	Priority int      `yaml:"priority" json:"priority"`
	Live     bool     `yaml:"live,omitempty" json:"live,omitempty"`
	Message  string   `yaml:"message" json:"message"`
}

// Build validates the spec against the template and returns the rule.
func (s Spec) Build(tmpl rep.Template) (Rule, error) {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("rule %q: %s: %w", s.Name, fmt.Sprintf(format, args...), rep.ErrInvalidProfile)
	}

	if s.Name == "" || s.Name == CorrectForm {
		return nil, invalid("reserved or empty name")
	}
	if s.Message == "" {
		return nil, invalid("no message")
	}
	if math.IsNaN(s.Limit) || math.IsInf(s.Limit, 0) {
		return nil, invalid("non-finite limit")
	}
	if s.Severity < Info || s.Severity > Error {
		return nil, invalid("bad severity %d", int(s.Severity))
	}
	phase := func() error {
		if tmpl.Index(s.Phase) < 0 {
			return invalid("unknown phase %q", s.Phase)
		}
		return nil
	}
	signal := func() error {
		if s.Signal == "" {
			return invalid("no signal")
		}
		return nil
	}
	notLive := func() error {
		if s.Live {
			return invalid("%s cannot be checked live", s.Kind)
		}
		return nil
	}

	b := base{name: s.Name, severity: s.Severity, priority: s.Priority, live: s.Live, message: s.Message}
	switch s.Kind {
	case PhaseMinBelow, PhaseMinAbove, PhaseMaxBelow, PhaseMaxAbove:
		if err := firstErr(phase(), signal()); err != nil {
			return nil, err
		}
		return phaseExtremum{
			base:   b,
			phase:  s.Phase,
			signal: s.Signal,
			useMax: s.Kind == PhaseMaxBelow || s.Kind == PhaseMaxAbove,
			above:  s.Kind == PhaseMinAbove || s.Kind == PhaseMaxAbove,
			limit:  s.Limit,
		}, nil
	case RangeBelow, RangeAbove:
		if err := firstErr(signal(), notLive()); err != nil {
			return nil, err
		}
		return rangeRule{base: b, signal: s.Signal, above: s.Kind == RangeAbove, limit: s.Limit}, nil
	case HoldBelow:
		if err := firstErr(phase(), notLive()); err != nil {
			return nil, err
		}
		if s.Limit <= 0 {
			return nil, invalid("hold limit must be positive")
		}
		return holdBelow{base: b, phase: s.Phase, limit: s.Limit}, nil
	case SignalMaxAbove:
		if err := signal(); err != nil {
			return nil, err
		}
		exclude := make(map[string]bool, len(s.Exclude))
		for _, p := range s.Exclude {
			if tmpl.Index(p) < 0 {
				return nil, invalid("unknown excluded phase %q", p)
			}
			exclude[p] = true
		}
		return signalMaxAbove{base: b, signal: s.Signal, exclude: exclude, limit: s.Limit}, nil
	case Regressed:
		if err := notLive(); err != nil {
			return nil, err
		}
		return regressed{base: b}, nil
	case MissedPhase:
		if err := firstErr(phase(), notLive()); err != nil {
			return nil, err
		}
		return missedPhase{base: b, phase: s.Phase}, nil
	default:
		return nil, invalid("unknown kind %q", s.Kind)
	}
}

// Compile builds every spec, rejecting duplicate names.
func Compile(specs []Spec, tmpl rep.Template) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate rule %q: %w", s.Name, rep.ErrInvalidProfile)
		}
		seen[s.Name] = true
		r, err := s.Build(tmpl)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
