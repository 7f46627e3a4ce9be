// Package landmark holds per-frame body keypoints and the bounded frame history.
package landmark

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ayusman/physiopal/internal/detector"
)

// Joint identifies a tracked body point using the detector's landmark numbering.
type Joint int

// Joints in MediaPipe Pose order.
const (
	Nose           Joint = detector.Nose
	LeftEyeInner   Joint = detector.LeftEyeInner
	LeftEye        Joint = detector.LeftEye
	LeftEyeOuter   Joint = detector.LeftEyeOuter
	RightEyeInner  Joint = detector.RightEyeInner
	RightEye       Joint = detector.RightEye
	RightEyeOuter  Joint = detector.RightEyeOuter
	LeftEar        Joint = detector.LeftEar
	RightEar       Joint = detector.RightEar
	MouthLeft      Joint = detector.MouthLeft
	MouthRight     Joint = detector.MouthRight
	LeftShoulder   Joint = detector.LeftShoulder
	RightShoulder  Joint = detector.RightShoulder
	LeftElbow      Joint = detector.LeftElbow
	RightElbow     Joint = detector.RightElbow
	LeftWrist      Joint = detector.LeftWrist
	RightWrist     Joint = detector.RightWrist
	LeftPinky      Joint = detector.LeftPinky
	RightPinky     Joint = detector.RightPinky
	LeftIndex      Joint = detector.LeftIndex
	RightIndex     Joint = detector.RightIndex
	LeftThumb      Joint = detector.LeftThumb
	RightThumb     Joint = detector.RightThumb
	LeftHip        Joint = detector.LeftHip
	RightHip       Joint = detector.RightHip
	LeftKnee       Joint = detector.LeftKnee
	RightKnee      Joint = detector.RightKnee
	LeftAnkle      Joint = detector.LeftAnkle
	RightAnkle     Joint = detector.RightAnkle
	LeftHeel       Joint = detector.LeftHeel
	RightHeel      Joint = detector.RightHeel
	LeftFootIndex  Joint = detector.LeftFootIndex
	RightFootIndex Joint = detector.RightFootIndex

	// Vertical is a virtual joint one unit straight up (toward the top of
	// the image) from whatever vertex it is paired with.
	Vertical Joint = -1
)

var jointNames = map[Joint]string{
	Nose:           "NOSE",
	LeftEyeInner:   "LEFT_EYE_INNER",
	LeftEye:        "LEFT_EYE",
	LeftEyeOuter:   "LEFT_EYE_OUTER",
	RightEyeInner:  "RIGHT_EYE_INNER",
	RightEye:       "RIGHT_EYE",
	RightEyeOuter:  "RIGHT_EYE_OUTER",
	LeftEar:        "LEFT_EAR",
	RightEar:       "RIGHT_EAR",
	MouthLeft:      "MOUTH_LEFT",
	MouthRight:     "MOUTH_RIGHT",
	LeftShoulder:   "LEFT_SHOULDER",
	RightShoulder:  "RIGHT_SHOULDER",
	LeftElbow:      "LEFT_ELBOW",
	RightElbow:     "RIGHT_ELBOW",
	LeftWrist:      "LEFT_WRIST",
	RightWrist:     "RIGHT_WRIST",
	LeftPinky:      "LEFT_PINKY",
	RightPinky:     "RIGHT_PINKY",
	LeftIndex:      "LEFT_INDEX",
	RightIndex:     "RIGHT_INDEX",
	LeftThumb:      "LEFT_THUMB",
	RightThumb:     "RIGHT_THUMB",
	LeftHip:        "LEFT_HIP",
	RightHip:       "RIGHT_HIP",
	LeftKnee:       "LEFT_KNEE",
	RightKnee:      "RIGHT_KNEE",
	LeftAnkle:      "LEFT_ANKLE",
	RightAnkle:     "RIGHT_ANKLE",
	LeftHeel:       "LEFT_HEEL",
	RightHeel:      "RIGHT_HEEL",
	LeftFootIndex:  "LEFT_FOOT_INDEX",
	RightFootIndex: "RIGHT_FOOT_INDEX",
	Vertical:       "VERTICAL",
}

var jointsByName = func() map[string]Joint {
	m := make(map[string]Joint, len(jointNames))
	for j, name := range jointNames {
		m[name] = j
	}
	return m
}()

var mirrors = func() map[Joint]Joint {
	pairs := [][2]Joint{
		{LeftEyeInner, RightEyeInner}, {LeftEye, RightEye}, {LeftEyeOuter, RightEyeOuter},
		{LeftEar, RightEar}, {MouthLeft, MouthRight}, {LeftShoulder, RightShoulder},
		{LeftElbow, RightElbow}, {LeftWrist, RightWrist}, {LeftPinky, RightPinky},
		{LeftIndex, RightIndex}, {LeftThumb, RightThumb}, {LeftHip, RightHip},
		{LeftKnee, RightKnee}, {LeftAnkle, RightAnkle}, {LeftHeel, RightHeel},
		{LeftFootIndex, RightFootIndex},
	}
	m := make(map[Joint]Joint, 2*len(pairs))
	for _, p := range pairs {
		m[p[0]] = p[1]
		m[p[1]] = p[0]
	}
	return m
}()

// String returns the upper snake case name, e.g. LEFT_KNEE.
func (j Joint) String() string {
	if name, ok := jointNames[j]; ok {
		return name
	}
	return fmt.Sprintf("JOINT_%d", int(j))
}

// Mirror returns the same joint on the other side of the body.
// Midline and virtual joints mirror to themselves.
func (j Joint) Mirror() Joint {
	if m, ok := mirrors[j]; ok {
		return m
	}
	return j
}

// Virtual reports whether the joint is synthesized rather than detected.
func (j Joint) Virtual() bool {
	return j == Vertical
}

// ParseJoint converts a joint name such as "left_knee" or "LEFT_KNEE".
// The numeric form "JOINT_n" written by String is accepted for any
// landmark index.
func ParseJoint(name string) (Joint, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if j, ok := jointsByName[upper]; ok {
		return j, nil
	}
	if rest, ok := strings.CutPrefix(upper, "JOINT_"); ok {
		if n, err := strconv.Atoi(rest); err == nil && n >= 0 && n < detector.NumLandmarks {
			return Joint(n), nil
		}
	}
	return 0, fmt.Errorf("unknown joint %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (j Joint) MarshalText() ([]byte, error) {
	return []byte(j.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (j *Joint) UnmarshalText(text []byte) error {
	parsed, err := ParseJoint(string(text))
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}
