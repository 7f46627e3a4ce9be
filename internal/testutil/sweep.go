// Package testutil generates synthetic landmark streams for tests and
// calibration.
package testutil

import (
	"math"
	"time"

	"github.com/ayusman/physiopal/internal/detector"
	"github.com/ayusman/physiopal/internal/landmark"
)

// FrameInterval is the spacing of generated frames (30 fps).
const FrameInterval = time.Second / 30

// Path walks between waypoints in steps of at most step degrees, including
// every waypoint.
func Path(step float64, waypoints ...float64) []float64 {
	if len(waypoints) == 0 {
		return nil
	}
	out := []float64{waypoints[0]}
	for i := 1; i < len(waypoints); i++ {
		from, to := waypoints[i-1], waypoints[i]
		n := int(math.Ceil(math.Abs(to-from) / step))
		for k := 1; k <= n; k++ {
			out = append(out, from+(to-from)*float64(k)/float64(n))
		}
	}
	return out
}

// Hold repeats v for n frames.
func Hold(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Concat joins value sequences.
func Concat(parts ...[]float64) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// PoseFunc renders a body for one driver value.
type PoseFunc func(v float64) detector.PoseLandmarks

// Frames renders values into frames starting at start, spaced by
// FrameInterval, through a landmark.Assembler.
func Frames(start time.Duration, values []float64, pose PoseFunc) []landmark.Frame {
	asm := landmark.NewAssembler()
	frames := make([]landmark.Frame, 0, len(values))
	for i, v := range values {
		f, err := asm.Assemble(start+time.Duration(i)*FrameInterval, pose(v))
		if err != nil {
			panic(err)
		}
		frames = append(frames, f)
	}
	return frames
}

// WithVisibility returns a copy of f with every landmark's visibility
// replaced.
func WithVisibility(f landmark.Frame, visibility float64) landmark.Frame {
	lms := f.Landmarks()
	for i := range lms {
		lms[i].Visibility = visibility
	}
	out := landmark.NewFrame(f.Timestamp, lms...)
	out.Seq = f.Seq
	return out
}

// WithJoint returns a copy of f with one joint moved.
func WithJoint(f landmark.Frame, j landmark.Joint, pos detector.Point3D) landmark.Frame {
	lms := f.Landmarks()
	for i := range lms {
		if lms[i].Joint == j {
			lms[i].Position = pos
		}
	}
	out := landmark.NewFrame(f.Timestamp, lms...)
	out.Seq = f.Seq
	return out
}
