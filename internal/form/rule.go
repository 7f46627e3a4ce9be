package form

import (
	"math"
	"strconv"
	"strings"

	"github.com/ayusman/physiopal/internal/rep"
)

// Rule is a predicate over a repetition trajectory. Check must not retain
// or modify the trajectory.
type Rule interface {
	Name() string
	Severity() Severity
	Priority() int
	// Live rules may also be checked against an in-progress trajectory.
	Live() bool
	Check(t rep.Trajectory) (message string, fired bool)
}

type base struct {
	name     string
	severity Severity
	priority int
	live     bool
	message  string
}

func (b base) Name() string       { return b.name }
func (b base) Severity() Severity { return b.severity }
func (b base) Priority() int      { return b.priority }
func (b base) Live() bool         { return b.live }

// render fills {value} and {limit} in the message template.
func (b base) render(value, limit float64) string {
	return strings.NewReplacer(
		"{value}", format(value),
		"{limit}", format(limit),
	).Replace(b.message)
}

func format(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// phaseExtremum compares a signal's min or max inside one phase.
type phaseExtremum struct {
	base
	phase  string
	signal string
	useMax bool
	above  bool
	limit  float64
}

func (r phaseExtremum) Check(t rep.Trajectory) (string, bool) {
	e, ok := t.PhaseExtrema(r.phase, r.signal)
	if !ok {
		return "", false
	}
	v := e.Min
	if r.useMax {
		v = e.Max
	}
	if (r.above && v > r.limit) || (!r.above && v < r.limit) {
		return r.render(v, r.limit), true
	}
	return "", false
}

// rangeRule compares a signal's range of motion over the repetition.
type rangeRule struct {
	base
	signal string
	above  bool
	limit  float64
}

func (r rangeRule) Check(t rep.Trajectory) (string, bool) {
	e, ok := t.Extrema(r.signal)
	if !ok {
		return "", false
	}
	v := e.Range()
	if (r.above && v > r.limit) || (!r.above && v < r.limit) {
		return r.render(v, r.limit), true
	}
	return "", false
}

// holdBelow fires when the time spent in a phase is shorter than limit
// seconds.
type holdBelow struct {
	base
	phase string
	limit float64
}

func (r holdBelow) Check(t rep.Trajectory) (string, bool) {
	if !t.Visited(r.phase) {
		return "", false
	}
	if held := t.PhaseSeconds(r.phase); held < r.limit {
		return r.render(held, r.limit), true
	}
	return "", false
}

// signalMaxAbove fires when a signal exceeds limit in any phase not
// excluded.
type signalMaxAbove struct {
	base
	signal  string
	exclude map[string]bool
	limit   float64
}

func (r signalMaxAbove) Check(t rep.Trajectory) (string, bool) {
	max, found := math.Inf(-1), false
	for _, s := range t.Segments {
		if r.exclude[s.Phase] {
			continue
		}
		e, ok := s.Signals[r.signal]
		if !ok || e.Samples == 0 {
			continue
		}
		max, found = math.Max(max, e.Max), true
	}
	if found && max > r.limit {
		return r.render(max, r.limit), true
	}
	return "", false
}

// regressed fires when the repetition reversed before completing.
type regressed struct {
	base
}

func (r regressed) Check(t rep.Trajectory) (string, bool) {
	if t.Regressions > 0 {
		return r.render(float64(t.Regressions), 0), true
	}
	return "", false
}

// missedPhase fires when the trajectory never reached a phase. It is meant
// for abandoned attempts, e.g. a leg raise lowered before the top.
type missedPhase struct {
	base
	phase string
}

func (r missedPhase) Check(t rep.Trajectory) (string, bool) {
	if t.Visited(r.phase) {
		return "", false
	}
	return r.render(0, 0), true
}
