package angle

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/physiopal/internal/detector"
	"github.com/ayusman/physiopal/internal/landmark"
)

func lm(j landmark.Joint, x, y, z, vis float64) landmark.Landmark {
	return landmark.Landmark{Joint: j, Position: detector.Point3D{X: x, Y: y, Z: z}, Visibility: vis}
}

func TestBetween(t *testing.T) {
	origin := r3.Vec{}

	tests := []struct {
		name string
		a, b r3.Vec
		want float64
	}{
		{"opposite", r3.Vec{X: 1}, r3.Vec{X: -2}, 180},
		{"same direction", r3.Vec{X: 1, Y: 1}, r3.Vec{X: 3, Y: 3}, 0},
		{"right angle", r3.Vec{X: 1}, r3.Vec{Y: 5}, 90},
		{"out of plane", r3.Vec{X: 1}, r3.Vec{X: 1, Z: 1}, 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Between(origin, tt.a, tt.b)
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestBetween_ExactEndpoints(t *testing.T) {
	origin := r3.Vec{}
	dirs := []r3.Vec{{X: 1, Y: 1}, {X: 0.3, Y: -0.7, Z: 0.2}, {Y: 1}, {X: -2, Z: 5}}

	for _, d := range dirs {
		got, ok := Between(origin, d, r3.Scale(4, d))
		require.True(t, ok)
		assert.Equal(t, 0.0, got, "parallel rays along %v", d)

		got, ok = Between(origin, d, r3.Scale(-2, d))
		require.True(t, ok)
		assert.Equal(t, 180.0, got, "opposite rays along %v", d)
	}

	// Small angles keep their precision.
	got, ok := Between(r3.Vec{}, r3.Vec{X: 1}, r3.Vec{X: 1, Y: 1e-7})
	require.True(t, ok)
	assert.InEpsilon(t, math.Atan(1e-7)*180/math.Pi, got, 1e-9)
}

func TestBetween_RangeProperty(t *testing.T) {
	// Deterministic spread of vectors around the sphere.
	for i := 0; i < 200; i++ {
		fi := float64(i)
		a := r3.Vec{X: math.Sin(fi * 0.37), Y: math.Cos(fi * 1.3), Z: math.Sin(fi * 0.11)}
		b := r3.Vec{X: math.Cos(fi * 0.71), Y: math.Sin(fi * 0.53), Z: math.Cos(fi * 2.9)}
		got, ok := Between(r3.Vec{X: 0.1, Y: -0.2}, a, b)
		if !ok {
			continue
		}
		if got < 0 || got > 180 || math.IsNaN(got) {
			t.Fatalf("angle %f out of range for a=%v b=%v", got, a, b)
		}
	}
}

func TestBetween_Degenerate(t *testing.T) {
	v := r3.Vec{X: 0.5, Y: 0.5}

	_, ok := Between(v, v, r3.Vec{X: 1})
	assert.False(t, ok)

	_, ok = Between(v, r3.Vec{X: 1}, v)
	assert.False(t, ok)
}

func TestEngine_Compute(t *testing.T) {
	frame := landmark.NewFrame(100*time.Millisecond,
		lm(landmark.LeftHip, 0.5, 0.5, 0, 0.9),
		lm(landmark.LeftKnee, 0.5, 0.7, 0, 0.8),
		lm(landmark.LeftAnkle, 0.5, 0.9, 0, 0.3),
		lm(landmark.LeftShoulder, 0.5, 0.2, 0, 0.9),
	)

	defs := []Definition{
		{Name: "knee", Vertex: landmark.LeftKnee, A: landmark.LeftHip, B: landmark.LeftAnkle},
		{Name: "knee_flexion", Vertex: landmark.LeftKnee, A: landmark.LeftHip, B: landmark.LeftAnkle, Supplement: true},
		{Name: "torso", Vertex: landmark.LeftHip, A: landmark.LeftShoulder, B: landmark.Vertical},
		{Name: "missing", Vertex: landmark.RightKnee, A: landmark.RightHip, B: landmark.RightAnkle},
	}

	samples := NewEngine(0.5).Compute(frame, defs)
	require.Len(t, samples, 4)

	assert.Equal(t, "knee", samples[0].Name)
	assert.InDelta(t, 180, samples[0].Degrees, 1e-9)
	assert.Equal(t, 100*time.Millisecond, samples[0].Timestamp)
	assert.InDelta(t, 0.3, samples[0].Confidence, 1e-12)
	assert.True(t, samples[0].LowConfidence, "ankle visibility is under the floor")
	assert.False(t, samples[0].Indeterminate)

	assert.InDelta(t, 0, samples[1].Degrees, 1e-9)

	assert.InDelta(t, 0, samples[2].Degrees, 1e-9)
	assert.False(t, samples[2].LowConfidence)

	assert.True(t, samples[3].Indeterminate)
	assert.True(t, samples[3].LowConfidence)
	assert.True(t, math.IsNaN(samples[3].Degrees))
}

func TestEngine_DegenerateIsIndeterminate(t *testing.T) {
	frame := landmark.NewFrame(0,
		lm(landmark.LeftHip, 0.5, 0.5, 0, 0.9),
		lm(landmark.LeftKnee, 0.5, 0.5, 0, 0.9),
		lm(landmark.LeftAnkle, 0.5, 0.9, 0, 0.9),
	)
	def := Definition{Name: "knee", Vertex: landmark.LeftKnee, A: landmark.LeftHip, B: landmark.LeftAnkle}

	s := (&Engine{}).Compute(frame, []Definition{def})[0]
	assert.True(t, s.Indeterminate)
	assert.True(t, s.LowConfidence)
	assert.True(t, math.IsNaN(s.Degrees))
}

func TestEngine_MirrorPicksVisibleSide(t *testing.T) {
	frame := landmark.NewFrame(0,
		lm(landmark.LeftHip, 0.5, 0.5, 0, 0.2),
		lm(landmark.LeftKnee, 0.5, 0.7, 0, 0.2),
		lm(landmark.LeftAnkle, 0.5, 0.9, 0, 0.2),
		lm(landmark.RightHip, 0.5, 0.5, 0, 0.9),
		lm(landmark.RightKnee, 0.5, 0.7, 0, 0.9),
		lm(landmark.RightAnkle, 0.7, 0.7, 0, 0.9),
	)
	def := Definition{Name: "knee", Vertex: landmark.LeftKnee, A: landmark.LeftHip, B: landmark.LeftAnkle, Mirror: true}

	s := NewEngine(0.5).Compute(frame, []Definition{def})[0]
	assert.InDelta(t, 90, s.Degrees, 1e-9, "right side should be used")
	assert.False(t, s.LowConfidence)
}

func TestEngine_SquatFixture(t *testing.T) {
	a := landmark.NewAssembler()
	frame, err := a.Assemble(0, detector.SquatPose(60))
	require.NoError(t, err)

	def := Definition{Name: "knee_vertical", Vertex: landmark.LeftKnee, A: landmark.LeftHip, B: landmark.Vertical, Mirror: true}
	s := NewEngine(0).Compute(frame, []Definition{def})[0]
	assert.InDelta(t, 60, s.Degrees, 1e-6)
}
