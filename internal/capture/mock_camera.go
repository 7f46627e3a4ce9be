package capture

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockCamera plays back in-memory images at a fixed frame interval.
type MockCamera struct {
	frames  []*gocv.Mat
	index   int
	emitted int
	clock   time.Duration
	loop    bool
	fps     int
	mu      sync.Mutex
	running bool
}

// NewMockCamera returns a camera over frames. Without loop, Read returns
// ErrEndOfStream after the last frame.
func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	return &MockCamera{frames: frames, loop: loop, fps: DefaultFPS}
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.index = 0
	c.emitted = 0
	c.clock = 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

// Read returns a clone of the next image. Each read advances the stream
// clock by one interval at the current rate.
func (c *MockCamera) Read() (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return Frame{}, ErrCameraNotOpen
	}
	if len(c.frames) == 0 {
		return Frame{}, fmt.Errorf("mock camera: %w", ErrEndOfStream)
	}
	if c.index >= len(c.frames) {
		if !c.loop {
			return Frame{}, ErrEndOfStream
		}
		c.index = 0
	}

	mat := c.frames[c.index].Clone()
	f := Frame{Mat: &mat, Timestamp: c.clock}
	c.clock += time.Second / time.Duration(c.fps)
	c.index++
	c.emitted++

	return f, nil
}

func (c *MockCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fps = fps
}

func (c *MockCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Emitted returns how many frames have been read since Open.
func (c *MockCamera) Emitted() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emitted
}
