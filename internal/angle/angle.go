// Package angle computes named joint angles from landmark frames.
package angle

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/physiopal/internal/landmark"
)

// DefaultMinConfidence is the visibility below which a sample is marked low confidence.
const DefaultMinConfidence = 0.5

// degenerateNorm is the vector length under which two landmarks are treated as overlapping.
const degenerateNorm = 1e-9

// Definition names the angle at Vertex formed by the rays to A and B.
//
// Mirror lets the engine use the same triple on the other side of the body
// when that side is better visible. Supplement reports 180 minus the angle,
// which turns an interior joint angle into a flexion angle.
type Definition struct {
	Name       string         `yaml:"name" json:"name"`
	Vertex     landmark.Joint `yaml:"vertex" json:"vertex"`
	A          landmark.Joint `yaml:"a" json:"a"`
	B          landmark.Joint `yaml:"b" json:"b"`
	Mirror     bool           `yaml:"mirror,omitempty" json:"mirror,omitempty"`
	Supplement bool           `yaml:"supplement,omitempty" json:"supplement,omitempty"`
}

// Mirrored returns the definition with every joint moved to the other side.
func (d Definition) Mirrored() Definition {
	m := d
	m.Vertex = d.Vertex.Mirror()
	m.A = d.A.Mirror()
	m.B = d.B.Mirror()
	return m
}

// Sample is one angle measurement for one frame.
type Sample struct {
	Name       string
	Degrees    float64 // NaN when Indeterminate
	Timestamp  time.Duration
	Confidence float64 // lowest visibility among the three landmarks

	// LowConfidence is set when Confidence is under the engine minimum or
	// the angle could not be determined.
	LowConfidence bool
	Indeterminate bool
}

// Engine computes angle samples. The zero value uses DefaultMinConfidence.
type Engine struct {
	MinConfidence float64
}

// NewEngine creates an Engine with the given confidence floor.
func NewEngine(minConfidence float64) *Engine {
	return &Engine{MinConfidence: minConfidence}
}

func (e *Engine) minConfidence() float64 {
	if e == nil || e.MinConfidence <= 0 {
		return DefaultMinConfidence
	}
	return e.MinConfidence
}

// Compute returns one sample per definition, in definition order.
func (e *Engine) Compute(frame landmark.Frame, defs []Definition) []Sample {
	samples := make([]Sample, len(defs))
	for i, def := range defs {
		samples[i] = e.computeOne(frame, def)
	}
	return samples
}

func (e *Engine) computeOne(frame landmark.Frame, def Definition) Sample {
	if def.Mirror {
		alt := def.Mirrored()
		if visibility(frame, alt) > visibility(frame, def) {
			def = alt
		}
	}

	s := Sample{
		Name:      def.Name,
		Timestamp: frame.Timestamp,
		Degrees:   math.NaN(),
	}

	vertex, okV := frame.Get(def.Vertex)
	a, okA := resolve(frame, def.A, vertex, okV)
	b, okB := resolve(frame, def.B, vertex, okV)
	if !okV || !okA || !okB {
		s.Indeterminate = true
		s.LowConfidence = true
		return s
	}

	s.Confidence = math.Min(vertex.Visibility, math.Min(a.Visibility, b.Visibility))
	s.LowConfidence = s.Confidence < e.minConfidence()

	deg, ok := Between(toVec(vertex), toVec(a), toVec(b))
	if !ok {
		s.Indeterminate = true
		s.LowConfidence = true
		return s
	}
	if def.Supplement {
		deg = 180 - deg
	}
	s.Degrees = deg
	return s
}

// Between returns the angle in degrees at vertex between the rays to a and b.
// It reports false when either ray has zero length.
func Between(vertex, a, b r3.Vec) (float64, bool) {
	u := r3.Sub(a, vertex)
	v := r3.Sub(b, vertex)

	nu, nv := r3.Norm(u), r3.Norm(v)
	if nu < degenerateNorm || nv < degenerateNorm {
		return 0, false
	}

	// atan2 of |u×v| and u·v stays exact near 0° and 180°, where acos of
	// the cosine loses precision.
	rad := math.Atan2(r3.Norm(r3.Cross(u, v)), r3.Dot(u, v))
	return rad / math.Pi * 180, true
}

// resolve looks up a joint, synthesizing virtual joints from the vertex.
func resolve(frame landmark.Frame, j landmark.Joint, vertex landmark.Landmark, vertexOK bool) (landmark.Landmark, bool) {
	if j == landmark.Vertical {
		if !vertexOK {
			return landmark.Landmark{}, false
		}
		up := vertex
		up.Joint = landmark.Vertical
		up.Position.Y--
		return up, true
	}
	return frame.Get(j)
}

// visibility is the lowest visibility of the definition's detected joints,
// or -1 when one of them is missing.
func visibility(frame landmark.Frame, def Definition) float64 {
	lowest := math.Inf(1)
	for _, j := range []landmark.Joint{def.Vertex, def.A, def.B} {
		if j.Virtual() {
			continue
		}
		l, ok := frame.Get(j)
		if !ok {
			return -1
		}
		lowest = math.Min(lowest, l.Visibility)
	}
	return lowest
}

func toVec(l landmark.Landmark) r3.Vec {
	return r3.Vec{X: l.Position.X, Y: l.Position.Y, Z: l.Position.Z}
}
