// Package smoothing suppresses frame-to-frame jitter in angle signals.
package smoothing

import (
	"fmt"
	"math"
	"time"

	"github.com/ayusman/physiopal/internal/angle"
)

// Default tuning values.
const (
	// DefaultAlpha gives an effective window of about five frames.
	DefaultAlpha = 1.0 / 3.0
	// DefaultLowConfidenceWeight scales alpha for low-confidence samples.
	DefaultLowConfidenceWeight = 0.2
	// DefaultDeadBand is the change in degrees needed to flip direction.
	DefaultDeadBand = 0.5
)

// Direction is the sign of a signal's recent movement.
type Direction int

const (
	Flat Direction = iota
	Rising
	Falling
)

func (d Direction) String() string {
	switch d {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	default:
		return "flat"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Signal is the filtered state of one named angle.
type Signal struct {
	Name       string        `json:"name"`
	Value      float64       `json:"value"`
	Direction  Direction     `json:"direction"`
	Timestamp  time.Duration `json:"timestamp"`
	Confidence float64       `json:"confidence"`

	// Primed is false until the first determinate sample arrives; Value is
	// meaningless before that.
	Primed bool `json:"primed"`
}

// Config tunes a Smoother.
type Config struct {
	Alpha               float64            `yaml:"alpha"`
	Alphas              map[string]float64 `yaml:"alphas,omitempty"`
	LowConfidenceWeight float64            `yaml:"low_confidence_weight"`
	DeadBand            float64            `yaml:"dead_band"`
}

// DefaultConfig returns the default smoothing configuration.
func DefaultConfig() Config {
	return Config{
		Alpha:               DefaultAlpha,
		LowConfidenceWeight: DefaultLowConfidenceWeight,
		DeadBand:            DefaultDeadBand,
	}
}

// Validate reports out-of-range values.
func (c Config) Validate() error {
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha %v: must be in (0, 1]", c.Alpha)
	}
	for name, a := range c.Alphas {
		if a <= 0 || a > 1 {
			return fmt.Errorf("alpha for %q %v: must be in (0, 1]", name, a)
		}
	}
	if c.LowConfidenceWeight < 0 || c.LowConfidenceWeight > 1 {
		return fmt.Errorf("low confidence weight %v: must be in [0, 1]", c.LowConfidenceWeight)
	}
	if c.DeadBand < 0 {
		return fmt.Errorf("dead band %v: must not be negative", c.DeadBand)
	}
	return nil
}

func (c Config) alpha(name string) float64 {
	if a, ok := c.Alphas[name]; ok {
		return a
	}
	return c.Alpha
}

// Smoother applies exponential smoothing per signal name.
// It is owned by a single session and is not safe for concurrent use.
type Smoother struct {
	cfg     Config
	signals map[string]*Signal
}

// WithDefaults replaces zero fields with their defaults.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Alpha == 0 {
		c.Alpha = def.Alpha
	}
	if c.LowConfidenceWeight == 0 {
		c.LowConfidenceWeight = def.LowConfidenceWeight
	}
	if c.DeadBand == 0 {
		c.DeadBand = def.DeadBand
	}
	return c
}

// New creates a Smoother. Zero config fields fall back to defaults.
func New(cfg Config) *Smoother {
	return &Smoother{cfg: cfg.WithDefaults(), signals: make(map[string]*Signal)}
}

// Update folds one sample into its signal and returns the new state.
//
// Low-confidence samples move the signal with a reduced alpha and
// indeterminate samples leave the value where it was, so brief occlusions
// neither freeze the signal nor make it jump.
func (s *Smoother) Update(sample angle.Sample) Signal {
	sig, ok := s.signals[sample.Name]
	if !ok {
		sig = &Signal{Name: sample.Name}
		s.signals[sample.Name] = sig
	}
	sig.Timestamp = sample.Timestamp

	if sample.Indeterminate || math.IsNaN(sample.Degrees) {
		sig.Confidence = 0
		return *sig
	}

	if !sig.Primed {
		sig.Value = sample.Degrees
		sig.Confidence = sample.Confidence
		sig.Direction = Flat
		sig.Primed = true
		return *sig
	}

	a := s.cfg.alpha(sample.Name)
	if sample.LowConfidence {
		a *= s.cfg.LowConfidenceWeight
	}

	prev := sig.Value
	sig.Value = a*sample.Degrees + (1-a)*prev
	sig.Confidence = a*sample.Confidence + (1-a)*sig.Confidence

	delta := sig.Value - prev
	switch {
	case delta > s.cfg.DeadBand:
		sig.Direction = Rising
	case delta < -s.cfg.DeadBand:
		sig.Direction = Falling
	}

	return *sig
}

// Signal returns the current state of a named signal.
func (s *Smoother) Signal(name string) (Signal, bool) {
	sig, ok := s.signals[name]
	if !ok {
		return Signal{}, false
	}
	return *sig, true
}

// Reset forgets every signal.
func (s *Smoother) Reset() {
	s.signals = make(map[string]*Signal)
}
