package rep

import (
	"fmt"
	"math"
	"time"

	"github.com/ayusman/physiopal/internal/smoothing"
)

// DefaultDwell is the number of consecutive frames a transition condition
// must hold before it fires.
const DefaultDwell = 3

// State is a snapshot of the machine.
type State struct {
	Phase      string        `json:"phase"`
	PhaseIndex int           `json:"phase_index"`
	EnteredAt  time.Duration `json:"entered_at"`
	Min        float64       `json:"min"`
	Max        float64       `json:"max"`
	Count      int           `json:"count"`
}

// Boundary is emitted when the initial phase is re-entered from the final
// phase.
type Boundary struct {
	Rep        int           `json:"rep"`
	At         time.Duration `json:"at"`
	Trajectory Trajectory    `json:"trajectory"`
}

// Step describes what one Update did. Abandoned is set when a regression
// returns to the initial phase; its trajectory is incomplete and its Rep
// is the attempt's would-be rep number. The counter does not change.
type Step struct {
	Changed   bool
	From      string
	To        string
	Backward  bool
	Boundary  *Boundary
	Abandoned *Boundary
}

// Machine counts repetitions of one template. It is not safe for
// concurrent use.
type Machine struct {
	tmpl  Template
	dwell int

	phase   int
	count   int
	forward int
	back    int

	current  Segment
	traj     Trajectory
	inRep    bool
	lastSeen time.Duration
}

// NewMachine validates the template and returns a machine in the initial
// phase. A dwell of zero or less uses DefaultDwell.
func NewMachine(tmpl Template, dwell int) (*Machine, error) {
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	if dwell <= 0 {
		dwell = DefaultDwell
	}
	t := Template{
		Signal:      tmpl.Signal,
		Phases:      append([]string(nil), tmpl.Phases...),
		Transitions: append([]Transition(nil), tmpl.Transitions...),
	}
	return &Machine{
		tmpl:    t,
		dwell:   dwell,
		current: newSegment(t.Phases[0], 0, 0),
	}, nil
}

// Template returns the machine's template.
func (m *Machine) Template() Template { return m.tmpl }

// Count returns the number of completed repetitions.
func (m *Machine) Count() int { return m.count }

// Update feeds one frame's smoothed signals. Frames where the driving
// signal is missing or not yet primed do not advance the machine, but
// primed auxiliary signals are still recorded.
func (m *Machine) Update(ts time.Duration, signals []smoothing.Signal) Step {
	m.lastSeen = ts
	m.current.Exited = ts
	m.current.Frames++

	driver, ok := m.observe(signals)
	if !ok {
		return Step{}
	}

	exit := m.tmpl.Transitions[m.phase]
	if exit.satisfied(driver) {
		m.forward++
	} else {
		m.forward = 0
	}

	if m.phase != 0 && m.tmpl.monotonic(m.phase) && m.tmpl.entry(m.phase).reversed(driver) {
		m.back++
	} else {
		m.back = 0
	}

	switch {
	case m.forward >= m.dwell:
		return m.advance(ts)
	case m.back >= m.dwell:
		return m.regress(ts)
	}
	return Step{}
}

func (m *Machine) observe(signals []smoothing.Signal) (float64, bool) {
	driver, found := 0.0, false
	for _, s := range signals {
		if !s.Primed || math.IsNaN(s.Value) {
			continue
		}
		e := m.current.Signals[s.Name]
		e.observe(s.Value)
		m.current.Signals[s.Name] = e
		if s.Name == m.tmpl.Signal {
			driver, found = s.Value, true
		}
	}
	return driver, found
}

func (m *Machine) advance(ts time.Duration) Step {
	from := m.phase
	next := (from + 1) % len(m.tmpl.Phases)
	m.forward, m.back = 0, 0

	m.current.Exited = ts
	step := Step{Changed: true, From: m.tmpl.Phases[from], To: m.tmpl.Phases[next]}

	switch {
	case from == 0:
		m.inRep = true
		m.traj = Trajectory{Rep: m.count + 1, Start: ts}
	default:
		m.traj.Segments = append(m.traj.Segments, m.current)
	}

	if next == 0 {
		m.count++
		m.traj.End = ts
		m.traj.Complete = true
		step.Boundary = &Boundary{Rep: m.count, At: ts, Trajectory: m.traj.clone()}
		m.traj = Trajectory{}
		m.inRep = false
	}

	m.phase = next
	m.current = newSegment(m.tmpl.Phases[next], next, ts)
	return step
}

func (m *Machine) regress(ts time.Duration) Step {
	from := m.phase
	prev := from - 1
	m.forward, m.back = 0, 0

	step := Step{Changed: true, Backward: true, From: m.tmpl.Phases[from], To: m.tmpl.Phases[prev]}

	if prev == 0 {
		m.current.Exited = ts
		m.traj.Segments = append(m.traj.Segments, m.current)
		m.traj.End = ts
		step.Abandoned = &Boundary{Rep: m.count + 1, At: ts, Trajectory: m.traj.clone()}
		m.traj = Trajectory{}
		m.inRep = false
	} else {
		// The re-entered phase was already closed into the trajectory.
		m.traj.Segments = m.traj.Segments[:len(m.traj.Segments)-1]
		m.traj.Regressions++
	}

	m.phase = prev
	m.current = newSegment(m.tmpl.Phases[prev], prev, ts)
	return step
}

// State returns the current phase, its entry time and the driving signal's
// extrema since entry.
func (m *Machine) State() State {
	st := State{
		Phase:      m.tmpl.Phases[m.phase],
		PhaseIndex: m.phase,
		EnteredAt:  m.current.Entered,
		Count:      m.count,
		Min:        math.NaN(),
		Max:        math.NaN(),
	}
	if e, ok := m.current.Signals[m.tmpl.Signal]; ok && e.Samples > 0 {
		st.Min, st.Max = e.Min, e.Max
	}
	return st
}

// InRep reports whether a repetition attempt is in progress.
func (m *Machine) InRep() bool { return m.inRep }

// Trajectory returns a copy of the in-progress trajectory including the
// open segment. Outside a rep it is empty.
func (m *Machine) Trajectory() Trajectory {
	if !m.inRep {
		return Trajectory{Rep: m.count + 1}
	}
	t := m.traj.clone()
	t.Segments = append(t.Segments, m.current.clone())
	t.End = m.lastSeen
	return t
}

func (m *Machine) String() string {
	return fmt.Sprintf("rep.Machine{%s phase=%s count=%d}", m.tmpl.Signal, m.tmpl.Phases[m.phase], m.count)
}
