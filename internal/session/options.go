package session

import (
	"fmt"
	"time"

	"github.com/ayusman/physiopal/internal/angle"
	"github.com/ayusman/physiopal/internal/landmark"
	"github.com/ayusman/physiopal/internal/rep"
	"github.com/ayusman/physiopal/internal/smoothing"
)

// Defaults for Options.
const (
	DefaultWarmup            = 5
	DefaultInactivityTimeout = 15 * time.Second
)

// Options tunes one session. Zero fields take their defaults.
type Options struct {
	BufferCapacity int
	// Warmup is the number of buffered frames required before the
	// repetition machine is fed. Signals are still smoothed meanwhile.
	Warmup            int
	Dwell             int
	MinConfidence     float64
	InactivityTimeout time.Duration
	Smoothing         smoothing.Config
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		BufferCapacity:    landmark.DefaultCapacity,
		Warmup:            DefaultWarmup,
		Dwell:             rep.DefaultDwell,
		MinConfidence:     angle.DefaultMinConfidence,
		InactivityTimeout: DefaultInactivityTimeout,
		Smoothing:         smoothing.DefaultConfig(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BufferCapacity <= 0 {
		o.BufferCapacity = d.BufferCapacity
	}
	if o.Warmup <= 0 {
		o.Warmup = d.Warmup
	}
	if o.Dwell <= 0 {
		o.Dwell = d.Dwell
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = d.MinConfidence
	}
	if o.InactivityTimeout == 0 {
		o.InactivityTimeout = d.InactivityTimeout
	}
	o.Smoothing = o.Smoothing.WithDefaults()
	return o
}

// Validate rejects option sets that cannot work, after defaults apply.
func (o Options) Validate() error {
	o = o.withDefaults()
	if o.Warmup > o.BufferCapacity {
		return fmt.Errorf("warmup of %d frames exceeds buffer capacity %d", o.Warmup, o.BufferCapacity)
	}
	if o.MinConfidence > 1 {
		return fmt.Errorf("min confidence %v must be at most 1", o.MinConfidence)
	}
	if o.InactivityTimeout < 0 {
		return fmt.Errorf("negative inactivity timeout %v", o.InactivityTimeout)
	}
	return o.Smoothing.Validate()
}
