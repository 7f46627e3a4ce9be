// Package rep detects exercise repetitions from a smoothed angle signal.
package rep

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidProfile is returned for phase templates or rule sets that
// cannot drive a session. It is raised before any frame is processed.
var ErrInvalidProfile = errors.New("invalid profile")

// Crossing is the side of a threshold a signal must be on.
type Crossing int

const (
	Above Crossing = iota + 1
	Below
)

func (c Crossing) String() string {
	switch c {
	case Above:
		return "above"
	case Below:
		return "below"
	default:
		return fmt.Sprintf("crossing(%d)", int(c))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Crossing) MarshalText() ([]byte, error) {
	if c != Above && c != Below {
		return nil, fmt.Errorf("invalid crossing %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Crossing) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "above":
		*c = Above
	case "below":
		*c = Below
	default:
		return fmt.Errorf("unknown crossing %q", string(text))
	}
	return nil
}

// Transition is the condition for leaving a phase.
type Transition struct {
	Threshold float64  `yaml:"threshold" json:"threshold"`
	Crossing  Crossing `yaml:"crossing" json:"crossing"`
}

// satisfied reports whether v is strictly past the threshold.
func (t Transition) satisfied(v float64) bool {
	switch t.Crossing {
	case Above:
		return v > t.Threshold
	case Below:
		return v < t.Threshold
	}
	return false
}

// reversed reports whether v is strictly back on the near side of the threshold.
func (t Transition) reversed(v float64) bool {
	switch t.Crossing {
	case Above:
		return v < t.Threshold
	case Below:
		return v > t.Threshold
	}
	return false
}

// Template is the cyclic phase sequence of one exercise. Phases[0] is the
// initial phase; Transitions[i] moves from Phases[i] to Phases[(i+1)%n].
type Template struct {
	Signal      string       `yaml:"signal" json:"signal"`
	Phases      []string     `yaml:"phases" json:"phases"`
	Transitions []Transition `yaml:"transitions" json:"transitions"`
}

// Initial returns the name of the initial phase.
func (t Template) Initial() string {
	if len(t.Phases) == 0 {
		return ""
	}
	return t.Phases[0]
}

// Index returns the position of a phase, or -1.
func (t Template) Index(phase string) int {
	for i, p := range t.Phases {
		if p == phase {
			return i
		}
	}
	return -1
}

// entry returns the transition that leads into phase i.
func (t Template) entry(i int) Transition {
	n := len(t.Phases)
	return t.Transitions[(i-1+n)%n]
}

// monotonic reports whether phase i is entered and left in the same
// direction, i.e. it is a movement phase that can be reversed.
func (t Template) monotonic(i int) bool {
	return t.entry(i).Crossing == t.Transitions[i].Crossing
}

// Validate checks that the template forms a usable cycle.
func (t Template) Validate() error {
	if t.Signal == "" {
		return fmt.Errorf("template has no signal: %w", ErrInvalidProfile)
	}
	n := len(t.Phases)
	if n < 2 {
		return fmt.Errorf("template needs at least 2 phases, has %d: %w", n, ErrInvalidProfile)
	}
	if len(t.Transitions) != n {
		return fmt.Errorf("template has %d phases but %d transitions: %w", n, len(t.Transitions), ErrInvalidProfile)
	}

	seen := make(map[string]bool, n)
	for _, p := range t.Phases {
		if p == "" {
			return fmt.Errorf("template has an unnamed phase: %w", ErrInvalidProfile)
		}
		if seen[p] {
			return fmt.Errorf("duplicate phase %q: %w", p, ErrInvalidProfile)
		}
		seen[p] = true
	}

	var above, below bool
	for i, tr := range t.Transitions {
		if math.IsNaN(tr.Threshold) || math.IsInf(tr.Threshold, 0) {
			return fmt.Errorf("transition from %q has non-finite threshold: %w", t.Phases[i], ErrInvalidProfile)
		}
		switch tr.Crossing {
		case Above:
			above = true
		case Below:
			below = true
		default:
			return fmt.Errorf("transition from %q has no crossing: %w", t.Phases[i], ErrInvalidProfile)
		}
	}
	if !above || !below {
		return fmt.Errorf("transitions never reverse direction, cycle cannot close: %w", ErrInvalidProfile)
	}

	for i := range t.Phases {
		// A phase whose exit already holds at its entry threshold is
		// passed through without ever being occupied.
		if t.Transitions[i].satisfied(t.entry(i).Threshold) {
			return fmt.Errorf("phase %q is unreachable: exit %s %v holds on entry at %v: %w",
				t.Phases[i], t.Transitions[i].Crossing, t.Transitions[i].Threshold, t.entry(i).Threshold, ErrInvalidProfile)
		}
	}

	return nil
}
