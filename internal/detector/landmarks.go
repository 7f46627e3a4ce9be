// Package detector provides pose detection interfaces and types for exercise analysis.
package detector

// Pose landmark indices following the MediaPipe Pose convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

// Point3D represents a 3D point in space with x, y, z coordinates.
// X and Y are normalized image coordinates (Y grows downward); Z is relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Keypoint is a single detected landmark with its visibility score.
type Keypoint struct {
	Index      int     `json:"index"`
	Point3D
	Visibility float64 `json:"visibility"`
}

// PoseLandmarks represents the keypoints of one detected body.
// Keypoints the model did not report are absent from Points.
type PoseLandmarks struct {
	Points []Keypoint `json:"points"`
	Score  float64    `json:"score"`
}

// Lookup returns the keypoint with the given landmark index, if present.
func (p *PoseLandmarks) Lookup(index int) (Keypoint, bool) {
	if p == nil {
		return Keypoint{}, false
	}
	for _, kp := range p.Points {
		if kp.Index == index {
			return kp, true
		}
	}
	return Keypoint{}, false
}
