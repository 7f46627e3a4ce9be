package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Frame differencing parameters.
const (
	BlurSize      = 21
	DiffThreshold = 25
)

// MotionGate decides whether a frame is worth running pose detection on.
// It compares each frame with the previous one and stays active for
// IdleAfter of stream time after the last frame whose changed-pixel share
// exceeded the threshold (a percentage, 1.0 means 1%).
type MotionGate struct {
	mu         sync.Mutex
	threshold  float64
	idleAfter  time.Duration
	prev       gocv.Mat
	primed     bool
	active     bool
	lastMotion time.Duration
}

// Decision is the gate's verdict for one frame.
type Decision struct {
	Active  bool
	Changed bool // Active differs from the previous frame's verdict
	Percent float64
}

// NewMotionGate creates a gate that starts idle.
func NewMotionGate(threshold float64, idleAfter time.Duration) *MotionGate {
	return &MotionGate{
		threshold: threshold,
		idleAfter: idleAfter,
		prev:      gocv.NewMat(),
	}
}

// Observe feeds one frame through the gate.
func (g *MotionGate) Observe(f Frame) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	percent, moved := g.diff(f.Mat)
	if moved {
		g.lastMotion = f.Timestamp
	}

	active := moved || (g.active && f.Timestamp-g.lastMotion < g.idleAfter)
	d := Decision{Active: active, Changed: active != g.active, Percent: percent}
	g.active = active
	return d
}

// diff returns the changed-pixel percentage against the previous frame.
// The first frame only primes the baseline.
func (g *MotionGate) diff(mat *gocv.Mat) (float64, bool) {
	if mat == nil || mat.Empty() {
		return 0, false
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if mat.Channels() > 1 {
		gocv.CvtColor(*mat, &gray, gocv.ColorBGRToGray)
	} else {
		mat.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: BlurSize, Y: BlurSize}, 0, 0, gocv.BorderDefault)

	if !g.primed {
		blurred.CopyTo(&g.prev)
		g.primed = true
		return 0, false
	}

	delta := gocv.NewMat()
	defer delta.Close()
	gocv.AbsDiff(blurred, g.prev, &delta)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(delta, &mask, DiffThreshold, 255, gocv.ThresholdBinary)

	percent := float64(gocv.CountNonZero(mask)) / float64(mask.Rows()*mask.Cols()) * 100.0
	blurred.CopyTo(&g.prev)

	return percent, percent > g.threshold
}

// Active reports the last verdict.
func (g *MotionGate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Reset drops the baseline and returns to idle.
func (g *MotionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clear()
}

// Close releases the baseline image. The gate may be reused afterwards.
func (g *MotionGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clear()
}

func (g *MotionGate) clear() {
	if !g.prev.Empty() {
		g.prev.Close()
		g.prev = gocv.NewMat()
	}
	g.primed = false
	g.active = false
	g.lastMotion = 0
}
