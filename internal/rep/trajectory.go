package rep

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Extrema tracks the range of one signal.
type Extrema struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
}

func (e *Extrema) observe(v float64) {
	if e.Samples == 0 {
		e.Min, e.Max = v, v
	} else {
		e.Min = math.Min(e.Min, v)
		e.Max = math.Max(e.Max, v)
	}
	e.Samples++
}

func (e Extrema) merge(o Extrema) Extrema {
	if e.Samples == 0 {
		return o
	}
	if o.Samples == 0 {
		return e
	}
	return Extrema{
		Min:     math.Min(e.Min, o.Min),
		Max:     math.Max(e.Max, o.Max),
		Samples: e.Samples + o.Samples,
	}
}

// Range returns Max-Min, or 0 with no samples.
func (e Extrema) Range() float64 {
	if e.Samples == 0 {
		return 0
	}
	return e.Max - e.Min
}

// Segment is one visit to a phase.
type Segment struct {
	Phase   string             `json:"phase"`
	Index   int                `json:"index"`
	Entered time.Duration      `json:"entered"`
	Exited  time.Duration      `json:"exited"`
	Frames  int                `json:"frames"`
	Signals map[string]Extrema `json:"signals"`
}

func newSegment(phase string, index int, ts time.Duration) Segment {
	return Segment{
		Phase:   phase,
		Index:   index,
		Entered: ts,
		Exited:  ts,
		Signals: make(map[string]Extrema),
	}
}

// Duration is the time spent in the segment. For the open segment it runs
// to the last observed frame.
func (s Segment) Duration() time.Duration {
	return s.Exited - s.Entered
}

func (s Segment) clone() Segment {
	c := s
	c.Signals = make(map[string]Extrema, len(s.Signals))
	for k, v := range s.Signals {
		c.Signals[k] = v
	}
	return c
}

// Trajectory is the ordered record of one repetition attempt, from leaving
// the initial phase until returning to it.
type Trajectory struct {
	Rep         int           `json:"rep"`
	Start       time.Duration `json:"start"`
	End         time.Duration `json:"end"`
	Segments    []Segment     `json:"segments"`
	Regressions int           `json:"regressions"`
	Complete    bool          `json:"complete"`
}

// Duration is the time from leaving the initial phase to the last frame.
func (t Trajectory) Duration() time.Duration {
	return t.End - t.Start
}

// Segment returns the last visit to phase.
func (t Trajectory) Segment(phase string) (Segment, bool) {
	for i := len(t.Segments) - 1; i >= 0; i-- {
		if t.Segments[i].Phase == phase {
			return t.Segments[i], true
		}
	}
	return Segment{}, false
}

// Extrema merges a signal's extrema across all segments.
func (t Trajectory) Extrema(signal string) (Extrema, bool) {
	var e Extrema
	for _, s := range t.Segments {
		e = e.merge(s.Signals[signal])
	}
	return e, e.Samples > 0
}

// PhaseExtrema returns a signal's extrema within one phase, merged across
// visits.
func (t Trajectory) PhaseExtrema(phase, signal string) (Extrema, bool) {
	var e Extrema
	for _, s := range t.Segments {
		if s.Phase == phase {
			e = e.merge(s.Signals[signal])
		}
	}
	return e, e.Samples > 0
}

// Range is the signal's range of motion over the whole rep.
func (t Trajectory) Range(signal string) float64 {
	e, _ := t.Extrema(signal)
	return e.Range()
}

// PhaseSeconds is the time spent in phase, summed over its visits.
func (t Trajectory) PhaseSeconds(phase string) float64 {
	var held []float64
	for _, s := range t.Segments {
		if s.Phase == phase {
			held = append(held, s.Duration().Seconds())
		}
	}
	return floats.Sum(held)
}

// Visited reports whether the trajectory contains the phase.
func (t Trajectory) Visited(phase string) bool {
	_, ok := t.Segment(phase)
	return ok
}

func (t Trajectory) clone() Trajectory {
	c := t
	c.Segments = make([]Segment, len(t.Segments))
	for i, s := range t.Segments {
		c.Segments[i] = s.clone()
	}
	return c
}
