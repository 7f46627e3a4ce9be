package landmark

import (
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/physiopal/internal/detector"
)

// ErrOutOfOrder is returned when a detection is not newer than the previous one.
var ErrOutOfOrder = errors.New("frame timestamp not increasing")

// Assembler turns detector output into Frames. Joints missing from a
// detection are carried at their last known position with zero visibility;
// joints never observed are withheld.
type Assembler struct {
	last    map[Joint]detector.Point3D
	lastTS  time.Duration
	started bool
}

// NewAssembler creates an Assembler with no history.
func NewAssembler() *Assembler {
	return &Assembler{last: make(map[Joint]detector.Point3D)}
}

// Assemble builds the frame for one detection taken at ts.
func (a *Assembler) Assemble(ts time.Duration, pose detector.PoseLandmarks) (Frame, error) {
	if a.started && ts <= a.lastTS {
		return Frame{}, fmt.Errorf("timestamp %v after %v: %w", ts, a.lastTS, ErrOutOfOrder)
	}
	a.started = true
	a.lastTS = ts

	seen := make(map[Joint]bool, len(pose.Points))
	landmarks := make([]Landmark, 0, detector.NumLandmarks)

	for _, kp := range pose.Points {
		if kp.Index < 0 || kp.Index >= detector.NumLandmarks {
			continue
		}
		j := Joint(kp.Index)
		seen[j] = true
		a.last[j] = kp.Point3D
		landmarks = append(landmarks, Landmark{
			Joint:      j,
			Position:   kp.Point3D,
			Visibility: clamp01(kp.Visibility),
		})
	}

	for j, pos := range a.last {
		if seen[j] {
			continue
		}
		landmarks = append(landmarks, Landmark{Joint: j, Position: pos, Visibility: 0})
	}

	return NewFrame(ts, landmarks...), nil
}

// Missing returns a frame for an instant where the detector found nobody:
// every known joint at its last position with zero visibility.
func (a *Assembler) Missing(ts time.Duration) (Frame, error) {
	return a.Assemble(ts, detector.PoseLandmarks{})
}

// Reset forgets every known position.
func (a *Assembler) Reset() {
	a.last = make(map[Joint]detector.Point3D)
	a.lastTS = 0
	a.started = false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
