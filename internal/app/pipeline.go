package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/physiopal/internal/capture"
	"github.com/ayusman/physiopal/internal/detector"
	"github.com/ayusman/physiopal/internal/landmark"
	"github.com/ayusman/physiopal/internal/session"
)

// inbox hands captured images to the detection goroutine. It holds one
// frame; a newer frame replaces and releases an undetected one, so a slow
// detector never stalls capture.
type inbox struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending *capture.Frame
	closed  bool
	dropped uint64
}

func newInbox() *inbox {
	in := &inbox{}
	in.cond = sync.NewCond(&in.mu)
	return in
}

// put stores f, releasing any frame still waiting. It reports false, and
// releases f, once the inbox is closed.
func (in *inbox) put(f capture.Frame) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		f.Close()
		return false
	}
	if in.pending != nil {
		in.pending.Close()
		in.dropped++
	}
	in.pending = &f
	in.cond.Signal()
	return true
}

// take blocks for the next frame. A frame stored before close is still
// handed out so the last image of a video is detected.
func (in *inbox) take() (capture.Frame, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for in.pending == nil && !in.closed {
		in.cond.Wait()
	}
	if in.pending == nil {
		return capture.Frame{}, false
	}
	f := *in.pending
	in.pending = nil
	return f, true
}

func (in *inbox) close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closed = true
	in.cond.Broadcast()
}

// discard closes the inbox and releases a waiting frame.
func (in *inbox) discard() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closed = true
	if in.pending != nil {
		in.pending.Close()
		in.pending = nil
		in.dropped++
	}
	in.cond.Broadcast()
}

// Dropped returns how many captured frames were replaced before detection.
func (in *inbox) Dropped() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.dropped
}

// runCapture reads frames at the idle rate until the motion gate opens,
// then at the active rate, passing active frames to the inbox. It closes
// the inbox on return.
func (a *App) runCapture(ctx context.Context, cam capture.Camera, det detector.Detector, in *inbox) {
	defer in.close()

	ticker := time.NewTicker(time.Second / time.Duration(a.config.IdleFPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := cam.Read()
			if errors.Is(err, capture.ErrEndOfStream) {
				slog.Info("app: end of stream")
				return
			}
			if err != nil {
				slog.Warn("app: reading frame", "error", err)
				continue
			}

			d := a.gate.Observe(frame)
			if d.Changed {
				fps := a.config.IdleFPS
				if d.Active {
					fps = a.config.ActiveFPS
				}
				cam.SetFPS(fps)
				ticker.Reset(time.Second / time.Duration(fps))
				slog.Debug("app: capture rate changed", "active", d.Active, "fps", fps, "motion", d.Percent)
			}
			if !d.Active || det == nil {
				frame.Close()
				continue
			}
			if !in.put(frame) {
				return
			}
		}
	}
}

// runDetection runs pose detection on the newest captured frame. Each
// detection becomes a landmark frame submitted to the runner; a frame
// without a person is submitted as missing so confidence drops instead of
// the signal freezing.
func (a *App) runDetection(ctx context.Context, det detector.Detector, in *inbox, runner *session.Runner) {
	defer in.discard()

	for {
		frame, ok := in.take()
		if !ok {
			return
		}
		if ctx.Err() != nil {
			frame.Close()
			return
		}

		poses, err := det.Detect(frame.Mat)
		frame.Close()
		if err != nil {
			slog.Warn("app: detecting pose", "error", err)
			continue
		}

		var lf landmark.Frame
		if len(poses) == 0 {
			lf, err = a.assembler.Missing(frame.Timestamp)
		} else {
			lf, err = a.assembler.Assemble(frame.Timestamp, poses[0])
		}
		if err != nil {
			slog.Warn("app: assembling frame", "error", err)
			continue
		}
		if !runner.Submit(lf) {
			return
		}
	}
}
