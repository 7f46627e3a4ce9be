package form

import (
	"sort"

	"github.com/ayusman/physiopal/internal/rep"
)

// correctMessage is the text of the single event emitted for a clean rep.
const correctMessage = "Correct form"

// Evaluate runs rules against a completed trajectory in priority order
// (ties keep declaration order). Every violation is reported; when nothing
// fires the result is a single correct_form event.
func Evaluate(t rep.Trajectory, rules []Rule) []Feedback {
	out := Violations(t, rules)
	if len(out) == 0 {
		out = append(out, Feedback{
			Rep:       t.Rep,
			Rule:      CorrectForm,
			Severity:  Info,
			Message:   correctMessage,
			Timestamp: t.End,
		})
	}
	return out
}

// Violations runs rules in the same order as Evaluate and returns only the
// ones that fired.
func Violations(t rep.Trajectory, rules []Rule) []Feedback {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	var out []Feedback
	for _, r := range ordered {
		msg, fired := r.Check(t)
		if !fired {
			continue
		}
		out = append(out, Feedback{
			Rep:       t.Rep,
			Rule:      r.Name(),
			Severity:  r.Severity(),
			Message:   msg,
			Timestamp: t.End,
		})
	}
	return out
}

// Faulty reports whether any feedback marks the repetition as incorrect.
func Faulty(fb []Feedback) bool {
	for _, f := range fb {
		if f.Faulty() {
			return true
		}
	}
	return false
}
