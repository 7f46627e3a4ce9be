package catalog

import (
	"sort"

	"github.com/ayusman/physiopal/internal/angle"
	"github.com/ayusman/physiopal/internal/form"
	"github.com/ayusman/physiopal/internal/landmark"
	"github.com/ayusman/physiopal/internal/rep"
)

// Difficulty levels of the built-in profiles.
const (
	Beginner = "beginner"
	Pro      = "pro"
)

// Built-in exercise names.
const (
	Squat    = "squat"
	LegRaise = "leg_raise"
)

// defaultMaxOffset is the nose-shoulder angle above which the camera is
// treated as facing the subject rather than side-on.
const defaultMaxOffset = 35.0

type squatLevel struct {
	pass      float64 // knee angle that reaches the bottom band
	leanMin   float64 // torso lean expected at the bottom
	leanMax   float64
	ankleMax  float64
	kneeLimit float64
}

type legRaiseLevel struct {
	restMax   float64
	topMin    float64
	kneeLock  float64
	torsoTilt float64
	hold      float64
}

var squatLevels = map[string]squatLevel{
	Beginner: {pass: 70, leanMin: 10, leanMax: 50, ankleMax: 45, kneeLimit: 95},
	Pro:      {pass: 80, leanMin: 15, leanMax: 50, ankleMax: 30, kneeLimit: 95},
}

var legRaiseLevels = map[string]legRaiseLevel{
	Beginner: {restMax: 15, topMin: 61, kneeLock: 20, torsoTilt: 25, hold: 1.0},
	Pro:      {restMax: 20, topMin: 76, kneeLock: 15, torsoTilt: 20, hold: 1.5},
}

func squatProfile(level string, l squatLevel) Profile {
	return Profile{
		Name:        Squat,
		Level:       level,
		Description: "Side-on bodyweight squat",
		Definitions: []angle.Definition{
			{Name: "knee_vertical", Vertex: landmark.LeftKnee, A: landmark.LeftHip, B: landmark.Vertical, Mirror: true},
			{Name: "hip_vertical", Vertex: landmark.LeftHip, A: landmark.LeftShoulder, B: landmark.Vertical, Mirror: true},
			{Name: "ankle_vertical", Vertex: landmark.LeftAnkle, A: landmark.LeftKnee, B: landmark.Vertical, Mirror: true},
		},
		Template: rep.Template{
			Signal: "knee_vertical",
			Phases: []string{"standing", "descending", "bottom", "ascending"},
			Transitions: []rep.Transition{
				{Threshold: 35, Crossing: rep.Above},
				{Threshold: l.pass, Crossing: rep.Above},
				{Threshold: 65, Crossing: rep.Below},
				{Threshold: 32, Crossing: rep.Below},
			},
		},
		Rules: []form.Spec{
			{
				Name: "too_deep", Kind: form.PhaseMaxAbove, Phase: "bottom", Signal: "knee_vertical",
				Limit: l.kneeLimit, Severity: form.Error, Priority: 0,
				Message: "Squat too deep",
			},
			{
				Name: "bend_backwards", Kind: form.SignalMaxAbove, Signal: "hip_vertical",
				Limit: l.leanMax, Severity: form.Warning, Priority: 1, Live: true,
				Message: "Bend backwards",
			},
			{
				Name: "knee_over_toe", Kind: form.SignalMaxAbove, Signal: "ankle_vertical",
				Limit: l.ankleMax, Severity: form.Warning, Priority: 2, Live: true,
				Message: "Knee falling over toe",
			},
			{
				Name: "bend_forward", Kind: form.PhaseMaxBelow, Phase: "bottom", Signal: "hip_vertical",
				Limit: l.leanMin, Severity: form.Warning, Priority: 3,
				Message: "Bend forward",
			},
			{
				Name: "unsteady", Kind: form.Regressed, Severity: form.Info, Priority: 9,
				Message: "Keep a steady tempo",
			},
		},
		AttemptRules: []form.Spec{
			{
				Name: "lower_hips", Kind: form.MissedPhase, Phase: "bottom",
				Severity: form.Warning, Message: "Lower your hips",
			},
		},
		Alignment: DefaultAlignment(defaultMaxOffset),
	}
}

func legRaiseProfile(level string, l legRaiseLevel) Profile {
	return Profile{
		Name:        LegRaise,
		Level:       level,
		Description: "Supine straight leg raise, side-on",
		Definitions: []angle.Definition{
			{Name: "hip_flexion", Vertex: landmark.LeftHip, A: landmark.LeftKnee, B: landmark.LeftShoulder, Mirror: true, Supplement: true},
			{Name: "knee_flexion", Vertex: landmark.LeftKnee, A: landmark.LeftHip, B: landmark.LeftAnkle, Mirror: true, Supplement: true},
			{Name: "torso_tilt", Vertex: landmark.LeftHip, A: landmark.LeftShoulder, B: landmark.Vertical, Mirror: true},
		},
		Template: rep.Template{
			Signal: "hip_flexion",
			Phases: []string{"rest", "raising", "top", "lowering"},
			Transitions: []rep.Transition{
				{Threshold: l.restMax + 1, Crossing: rep.Above},
				{Threshold: l.topMin, Crossing: rep.Above},
				{Threshold: l.topMin - 1, Crossing: rep.Below},
				{Threshold: l.restMax, Crossing: rep.Below},
			},
		},
		Rules: []form.Spec{
			{
				Name: "lock_knee", Kind: form.SignalMaxAbove, Signal: "knee_flexion",
				Exclude: []string{"top"}, Limit: l.kneeLock, Severity: form.Warning, Priority: 0, Live: true,
				Message: "Lock your knee",
			},
			{
				Name: "arch_back", Kind: form.RangeAbove, Signal: "torso_tilt",
				Limit: l.torsoTilt, Severity: form.Warning, Priority: 1,
				Message: "Don't arch your back",
			},
			{
				Name: "hold_top", Kind: form.HoldBelow, Phase: "top",
				Limit: l.hold, Severity: form.Warning, Priority: 3,
				Message: "Hold at the top for {limit}s (held {value}s)",
			},
			{
				Name: "control_lowering", Kind: form.HoldBelow, Phase: "lowering",
				Limit: 0.5, Severity: form.Warning, Priority: 4,
				Message: "Control lowering",
			},
			{
				Name: "unsteady", Kind: form.Regressed, Severity: form.Info, Priority: 9,
				Message: "Keep a steady tempo",
			},
		},
		AttemptRules: []form.Spec{
			{
				Name: "raise_higher", Kind: form.MissedPhase, Phase: "top",
				Severity: form.Warning, Message: "Raise higher",
			},
		},
		Alignment: DefaultAlignment(defaultMaxOffset),
	}
}

// Builtins returns fresh copies of the built-in profiles, ordered by key.
func Builtins() []Profile {
	var out []Profile
	for level, l := range squatLevels {
		out = append(out, squatProfile(level, l))
	}
	for level, l := range legRaiseLevels {
		out = append(out, legRaiseProfile(level, l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Lookup returns a built-in profile by exercise name and level.
func Lookup(name, level string) (Profile, bool) {
	switch name {
	case Squat:
		if l, ok := squatLevels[level]; ok {
			return squatProfile(level, l), true
		}
	case LegRaise:
		if l, ok := legRaiseLevels[level]; ok {
			return legRaiseProfile(level, l), true
		}
	}
	return Profile{}, false
}
