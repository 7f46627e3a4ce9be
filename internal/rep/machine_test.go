package rep

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/physiopal/internal/smoothing"
)

const frameInterval = 33 * time.Millisecond

func squatTemplate() Template {
	return Template{
		Signal: "knee",
		Phases: []string{"standing", "descending", "bottom", "ascending"},
		Transitions: []Transition{
			{Threshold: 35, Crossing: Above},
			{Threshold: 70, Crossing: Above},
			{Threshold: 65, Crossing: Below},
			{Threshold: 32, Crossing: Below},
		},
	}
}

// path walks between waypoints in fixed steps, including every waypoint.
func path(step float64, waypoints ...float64) []float64 {
	out := []float64{waypoints[0]}
	for i := 1; i < len(waypoints); i++ {
		from, to := waypoints[i-1], waypoints[i]
		n := int(math.Round(math.Abs(to-from) / step))
		for k := 1; k <= n; k++ {
			out = append(out, from+(to-from)*float64(k)/float64(n))
		}
	}
	return out
}

type run struct {
	steps      []Step
	boundaries []*Boundary
}

func feed(m *Machine, values []float64) run {
	var r run
	for i, v := range values {
		ts := time.Duration(i) * frameInterval
		step := m.Update(ts, []smoothing.Signal{{Name: "knee", Value: v, Timestamp: ts, Confidence: 1, Primed: true}})
		if step.Changed {
			r.steps = append(r.steps, step)
		}
		if step.Boundary != nil {
			r.boundaries = append(r.boundaries, step.Boundary)
		}
	}
	return r
}

func phasesOf(t Trajectory) []string {
	var out []string
	for _, s := range t.Segments {
		out = append(out, s.Phase)
	}
	return out
}

func TestMachine_SingleSweepCountsOnce(t *testing.T) {
	m, err := NewMachine(squatTemplate(), 3)
	require.NoError(t, err)

	r := feed(m, path(5, 10, 100, 10))

	assert.Equal(t, 1, m.Count())
	require.Len(t, r.boundaries, 1)
	b := r.boundaries[0]
	assert.Equal(t, 1, b.Rep)
	assert.True(t, b.Trajectory.Complete)
	assert.Equal(t, []string{"descending", "bottom", "ascending"}, phasesOf(b.Trajectory))

	bottom, ok := b.Trajectory.Segment("bottom")
	require.True(t, ok)
	assert.Equal(t, 100.0, bottom.Signals["knee"].Max)
	assert.Equal(t, 50.0, bottom.Signals["knee"].Min)
	assert.Positive(t, bottom.Duration())
	assert.Positive(t, b.Trajectory.Duration())

	assert.Equal(t, "standing", m.State().Phase)
	assert.Len(t, r.steps, 4)
	for _, s := range r.steps {
		assert.False(t, s.Backward)
	}
}

func TestMachine_ReversalDoesNotCount(t *testing.T) {
	m, err := NewMachine(squatTemplate(), 3)
	require.NoError(t, err)

	r := feed(m, path(5, 10, 60, 10))

	assert.Zero(t, m.Count())
	assert.Empty(t, r.boundaries)
	require.Len(t, r.steps, 2)
	assert.Equal(t, "descending", r.steps[0].To)
	assert.True(t, r.steps[1].Backward)
	assert.Equal(t, "standing", r.steps[1].To)
	assert.False(t, m.InRep())

	a := r.steps[1].Abandoned
	require.NotNil(t, a)
	assert.Equal(t, 1, a.Rep)
	assert.False(t, a.Trajectory.Complete)
	assert.Equal(t, []string{"descending"}, phasesOf(a.Trajectory))
	peak, ok := a.Trajectory.Extrema("knee")
	require.True(t, ok)
	assert.Equal(t, 60.0, peak.Max)
	assert.Equal(t, a.At, a.Trajectory.End)
}

func TestMachine_AbandonedAfterCompletedRep(t *testing.T) {
	m, err := NewMachine(squatTemplate(), 3)
	require.NoError(t, err)

	var abandoned []*Boundary
	values := append(path(5, 10, 100, 10), path(5, 15, 55, 10)...)
	for i, v := range values {
		ts := time.Duration(i) * frameInterval
		step := m.Update(ts, []smoothing.Signal{{Name: "knee", Value: v, Timestamp: ts, Confidence: 1, Primed: true}})
		if step.Abandoned != nil {
			abandoned = append(abandoned, step.Abandoned)
		}
		if step.Backward && step.To != "standing" {
			assert.Nil(t, step.Abandoned)
		}
	}

	assert.Equal(t, 1, m.Count())
	require.Len(t, abandoned, 1)
	assert.Equal(t, 2, abandoned[0].Rep)
	assert.False(t, abandoned[0].Trajectory.Visited("bottom"))
}

func TestMachine_RegressionInsideRep(t *testing.T) {
	m, err := NewMachine(squatTemplate(), 3)
	require.NoError(t, err)

	r := feed(m, path(5, 10, 100, 50, 100, 10))

	assert.Equal(t, 1, m.Count())
	require.Len(t, r.boundaries, 1)
	traj := r.boundaries[0].Trajectory
	assert.Equal(t, 1, traj.Regressions)
	assert.Equal(t, []string{"descending", "bottom", "ascending"}, phasesOf(traj))

	// The re-entered bottom segment starts at the regression frame.
	bottom, _ := traj.Segment("bottom")
	assert.Equal(t, 34*frameInterval, bottom.Entered)
	assert.Equal(t, 14, bottom.Signals["knee"].Samples)
	assert.Equal(t, 100.0, bottom.Signals["knee"].Max)
	assert.InDelta(t, bottom.Duration().Seconds(), traj.PhaseSeconds("bottom"), 1e-9)
	assert.Zero(t, traj.PhaseSeconds("standing"))
}

func TestMachine_Dwell(t *testing.T) {
	m, err := NewMachine(squatTemplate(), 3)
	require.NoError(t, err)

	r := feed(m, []float64{10, 50, 10, 50, 50, 10})
	assert.Empty(t, r.steps)

	r = feed(m, []float64{50, 50, 50})
	require.Len(t, r.steps, 1)
	assert.Equal(t, "descending", r.steps[0].To)
}

func TestMachine_DefaultDwell(t *testing.T) {
	m, err := NewMachine(squatTemplate(), 0)
	require.NoError(t, err)

	r := feed(m, []float64{50, 50})
	assert.Empty(t, r.steps)
	r = feed(m, []float64{50})
	assert.Len(t, r.steps, 1)
}

func TestMachine_UnprimedDriverIgnored(t *testing.T) {
	m, err := NewMachine(squatTemplate(), 1)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		step := m.Update(time.Duration(i)*frameInterval, []smoothing.Signal{
			{Name: "knee", Value: 90},
			{Name: "torso", Value: 10, Primed: true},
		})
		assert.False(t, step.Changed)
	}
	assert.Equal(t, "standing", m.State().Phase)
}

func TestMachine_TrajectoryInProgress(t *testing.T) {
	m, err := NewMachine(squatTemplate(), 3)
	require.NoError(t, err)

	assert.Empty(t, m.Trajectory().Segments)

	feed(m, path(5, 10, 85))

	traj := m.Trajectory()
	assert.False(t, traj.Complete)
	assert.Equal(t, []string{"descending", "bottom"}, phasesOf(traj))
	assert.Equal(t, 1, traj.Rep)

	st := m.State()
	assert.Equal(t, "bottom", st.Phase)
	assert.Equal(t, 2, st.PhaseIndex)
	assert.Equal(t, 0, st.Count)

	// Snapshot is a copy.
	traj.Segments[0].Signals["knee"] = Extrema{}
	again := m.Trajectory()
	assert.NotZero(t, again.Segments[0].Signals["knee"].Samples)
}

func TestMachine_AuxiliarySignalsRecorded(t *testing.T) {
	m, err := NewMachine(squatTemplate(), 1)
	require.NoError(t, err)

	values := path(5, 10, 100, 10)
	var b *Boundary
	for i, v := range values {
		step := m.Update(time.Duration(i)*frameInterval, []smoothing.Signal{
			{Name: "knee", Value: v, Primed: true},
			{Name: "torso", Value: v / 2, Primed: true},
		})
		if step.Boundary != nil {
			b = step.Boundary
		}
	}
	require.NotNil(t, b)
	e, ok := b.Trajectory.Extrema("torso")
	require.True(t, ok)
	assert.Equal(t, 50.0, e.Max)
	assert.InDelta(t, 50.0-e.Min, b.Trajectory.Range("torso"), 1e-9)

	pe, ok := b.Trajectory.PhaseExtrema("bottom", "torso")
	require.True(t, ok)
	assert.Equal(t, 50.0, pe.Max)
}

func TestTemplate_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Template)
	}{
		{"no signal", func(tp *Template) { tp.Signal = "" }},
		{"one phase", func(tp *Template) {
			tp.Phases = tp.Phases[:1]
			tp.Transitions = tp.Transitions[:1]
		}},
		{"count mismatch", func(tp *Template) { tp.Transitions = tp.Transitions[:3] }},
		{"duplicate phase", func(tp *Template) { tp.Phases[2] = "descending" }},
		{"empty phase", func(tp *Template) { tp.Phases[1] = "" }},
		{"nan threshold", func(tp *Template) { tp.Transitions[1].Threshold = math.NaN() }},
		{"inf threshold", func(tp *Template) { tp.Transitions[1].Threshold = math.Inf(1) }},
		{"no crossing", func(tp *Template) { tp.Transitions[0].Crossing = 0 }},
		{"never reverses", func(tp *Template) {
			for i := range tp.Transitions {
				tp.Transitions[i].Crossing = Above
			}
		}},
		{"unreachable phase", func(tp *Template) { tp.Transitions[1].Threshold = 30 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := squatTemplate()
			tt.mutate(&tmpl)
			_, err := NewMachine(tmpl, 3)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidProfile), "got %v", err)
		})
	}

	assert.NoError(t, squatTemplate().Validate())
}

func TestCrossing_Text(t *testing.T) {
	var c Crossing
	require.NoError(t, c.UnmarshalText([]byte("Below")))
	assert.Equal(t, Below, c)
	b, err := Above.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "above", string(b))
	assert.Error(t, c.UnmarshalText([]byte("sideways")))
	_, err = Crossing(9).MarshalText()
	assert.Error(t, err)
}

func TestTemplate_Index(t *testing.T) {
	tmpl := squatTemplate()
	assert.Equal(t, "standing", tmpl.Initial())
	assert.Equal(t, 2, tmpl.Index("bottom"))
	assert.Equal(t, -1, tmpl.Index("jumping"))
}
