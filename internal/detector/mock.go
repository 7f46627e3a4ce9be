package detector

import (
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	poses []PoseLandmarks
	queue [][]PoseLandmarks
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetPoses sets the poses that will be returned by every Detect call.
func (m *MockDetector) SetPoses(poses []PoseLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poses = poses
}

// Enqueue appends results returned by successive Detect calls before
// falling back to the poses set with SetPoses.
func (m *MockDetector) Enqueue(results ...[]PoseLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, results...)
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured poses or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]PoseLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		return next, nil
	}
	return m.poses, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// pose collects keypoints for the synthetic fixtures below.
type pose map[int]Keypoint

func (p pose) set(index int, x, y, z, visibility float64) {
	p[index] = Keypoint{Index: index, Point3D: Point3D{X: x, Y: y, Z: z}, Visibility: visibility}
}

func (p pose) landmarks() PoseLandmarks {
	lm := PoseLandmarks{Score: 0.9, Points: make([]Keypoint, 0, len(p))}
	for i := 0; i < NumLandmarks; i++ {
		if kp, ok := p[i]; ok {
			lm.Points = append(lm.Points, kp)
		}
	}
	return lm
}

// mirror copies every left-side keypoint to its right-side counterpart,
// pushed back in depth and with reduced visibility, as seen from the side.
func (p pose) mirror(visibility float64) {
	pairs := [][2]int{
		{LeftEye, RightEye}, {LeftEar, RightEar}, {LeftShoulder, RightShoulder},
		{LeftElbow, RightElbow}, {LeftWrist, RightWrist}, {LeftHip, RightHip},
		{LeftKnee, RightKnee}, {LeftAnkle, RightAnkle}, {LeftHeel, RightHeel},
		{LeftFootIndex, RightFootIndex},
	}
	for _, pair := range pairs {
		l, ok := p[pair[0]]
		if !ok {
			continue
		}
		p.set(pair[1], l.X+0.005, l.Y, l.Z+0.02, visibility)
	}
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// SquatPose returns a side-view standing/squatting body whose thigh makes
// kneeVertical degrees with the vertical through the knee (0 = standing).
// The left side faces the camera.
func SquatPose(kneeVertical float64) PoseLandmarks {
	p := pose{}
	const vis = 0.95

	ankleX, ankleY := 0.50, 0.90
	kneeX, kneeY := 0.55, 0.70

	theta := rad(kneeVertical)
	hipX := kneeX - 0.25*math.Sin(theta)
	hipY := kneeY - 0.25*math.Cos(theta)

	lean := rad(0.4 * kneeVertical)
	shX := hipX + 0.30*math.Sin(lean)
	shY := hipY - 0.30*math.Cos(lean)

	p.set(Nose, shX+0.03, shY-0.08, 0, vis)
	p.set(LeftEye, shX+0.035, shY-0.09, 0, vis)
	p.set(LeftEar, shX+0.01, shY-0.085, 0, vis)
	p.set(LeftShoulder, shX, shY, 0, vis)
	p.set(LeftElbow, shX+0.12, shY+0.02, 0, vis)
	p.set(LeftWrist, shX+0.24, shY+0.02, 0, vis)
	p.set(LeftHip, hipX, hipY, 0, vis)
	p.set(LeftKnee, kneeX, kneeY, 0, vis)
	p.set(LeftAnkle, ankleX, ankleY, 0, vis)
	p.set(LeftHeel, ankleX-0.02, ankleY+0.02, 0, vis)
	p.set(LeftFootIndex, ankleX+0.08, ankleY+0.02, 0, vis)
	p.mirror(0.6)

	return p.landmarks()
}

// LegRaisePose returns a supine side-view body with a straight leg raised
// hipFlexion degrees from the floor.
func LegRaisePose(hipFlexion float64) PoseLandmarks {
	p := pose{}
	const vis = 0.95

	shX, shY := 0.30, 0.80
	hipX, hipY := 0.55, 0.80

	f := rad(hipFlexion)
	kneeX := hipX + 0.20*math.Cos(f)
	kneeY := hipY - 0.20*math.Sin(f)
	ankleX := hipX + 0.40*math.Cos(f)
	ankleY := hipY - 0.40*math.Sin(f)

	p.set(Nose, shX-0.08, shY-0.04, 0, vis)
	p.set(LeftEye, shX-0.085, shY-0.05, 0, vis)
	p.set(LeftEar, shX-0.06, shY-0.03, 0, vis)
	p.set(LeftShoulder, shX, shY, 0, vis)
	p.set(LeftElbow, shX+0.10, shY+0.01, 0, vis)
	p.set(LeftWrist, shX+0.20, shY+0.01, 0, vis)
	p.set(LeftHip, hipX, hipY, 0, vis)
	p.set(LeftKnee, kneeX, kneeY, 0, vis)
	p.set(LeftAnkle, ankleX, ankleY, 0, vis)
	p.set(LeftHeel, ankleX+0.01, ankleY+0.02, 0, vis)
	p.set(LeftFootIndex, ankleX+0.03, ankleY-0.05, 0, vis)
	p.mirror(0.6)

	return p.landmarks()
}
