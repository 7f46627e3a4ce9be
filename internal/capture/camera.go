// Package capture reads timestamped frames from a camera or video file using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Default capture settings
const (
	DefaultFPS    = 15
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrEndOfStream is returned once a finite source has no more frames.
	ErrEndOfStream = errors.New("end of stream")
)

// Frame is one captured image and its stream time, measured from Open.
// The receiver owns Mat and must call Close.
type Frame struct {
	Mat       *gocv.Mat
	Timestamp time.Duration
}

// Close releases the image.
func (f Frame) Close() {
	if f.Mat != nil {
		f.Mat.Close()
	}
}

// Camera defines the interface for frame sources.
type Camera interface {
	Open() error
	Close() error
	Read() (Frame, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// cameraImpl reads from a capture device or a video file.
type cameraImpl struct {
	source  any // int device id or file path
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	fps     int
	opened  time.Time
	last    time.Duration
	file    bool
	frames  int
}

// NewCamera returns a Camera for the given device id.
func NewCamera(deviceID int) Camera {
	return &cameraImpl{source: deviceID, fps: DefaultFPS}
}

// NewVideoFile returns a Camera that plays back a recorded video. Timestamps
// follow the file's frame rate instead of the wall clock.
func NewVideoFile(path string) Camera {
	return &cameraImpl{source: path, fps: DefaultFPS, file: true}
}

// Open starts capturing at 640x480.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.source)
	if err != nil {
		return fmt.Errorf("open %v: %w", c.source, err)
	}

	if c.file {
		if fps := int(capture.Get(gocv.VideoCaptureFPS)); fps > 0 {
			c.fps = fps
		}
	} else {
		capture.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
		capture.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
		capture.Set(gocv.VideoCaptureFPS, float64(c.fps))
	}

	c.capture = capture
	c.running = true
	c.opened = time.Now()
	c.last = -1
	c.frames = 0

	slog.Info("capture: opened", "source", c.source, "fps", c.fps)
	return nil
}

// Close releases the device.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	slog.Info("capture: closed", "source", c.source, "frames", c.frames)
	return err
}

// Read grabs the next frame. Timestamps are strictly increasing.
func (c *cameraImpl) Read() (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return Frame{}, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		if c.file {
			return Frame{}, ErrEndOfStream
		}
		return Frame{}, errors.New("failed to read frame from camera")
	}

	var ts time.Duration
	if c.file {
		ts = time.Duration(c.frames) * time.Second / time.Duration(c.fps)
	} else {
		ts = time.Since(c.opened)
	}
	if ts <= c.last {
		ts = c.last + time.Microsecond
	}
	c.last = ts
	c.frames++

	return Frame{Mat: &mat, Timestamp: ts}, nil
}

// SetFPS changes the requested device rate. Values <= 0 are ignored, and
// video files keep their native rate.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file {
		return
	}
	c.fps = fps

	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current rate.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fps
}

// IsOpen reports whether the source is open.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
