package landmark

import (
	"time"

	"github.com/ayusman/physiopal/internal/detector"
)

// Landmark is one tracked body point for one instant. Values are immutable
// once recorded.
type Landmark struct {
	Joint      Joint            `json:"joint"`
	Position   detector.Point3D `json:"position"`
	Visibility float64          `json:"visibility"`
}

// Frame is the set of landmarks observed at one instant. Timestamp is the
// offset from the start of the stream and increases strictly frame to frame.
type Frame struct {
	Seq       uint64
	Timestamp time.Duration
	landmarks map[Joint]Landmark
}

// NewFrame builds a frame from a list of landmarks. Later duplicates of a
// joint replace earlier ones.
func NewFrame(ts time.Duration, landmarks ...Landmark) Frame {
	m := make(map[Joint]Landmark, len(landmarks))
	for _, l := range landmarks {
		m[l.Joint] = l
	}
	return Frame{Timestamp: ts, landmarks: m}
}

// Get returns the landmark for a joint, if it has ever been observed.
func (f Frame) Get(j Joint) (Landmark, bool) {
	l, ok := f.landmarks[j]
	return l, ok
}

// Len returns the number of landmarks in the frame.
func (f Frame) Len() int {
	return len(f.landmarks)
}

// Landmarks returns the frame's landmarks ordered by joint.
func (f Frame) Landmarks() []Landmark {
	out := make([]Landmark, 0, len(f.landmarks))
	for j := Joint(0); j < detector.NumLandmarks; j++ {
		if l, ok := f.landmarks[j]; ok {
			out = append(out, l)
		}
	}
	return out
}
