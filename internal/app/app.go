// Package app runs the live physiopal pipeline: camera capture, motion
// gating, pose detection and one rep-counting session.
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/physiopal/internal/capture"
	"github.com/ayusman/physiopal/internal/catalog"
	"github.com/ayusman/physiopal/internal/detector"
	"github.com/ayusman/physiopal/internal/landmark"
	"github.com/ayusman/physiopal/internal/session"
)

// Pipeline defaults.
const (
	IdleFPS   = 5
	ActiveFPS = 15
	IdleAfter = 2 * time.Second
)

// Config holds configuration options for the application.
type Config struct {
	Profile  catalog.Profile
	Session  session.Options
	Detector detector.Config

	CameraID     int
	Video        string // play back a file instead of the camera
	ActiveFPS    int
	IdleFPS      int
	IdleAfter    time.Duration
	MotionThresh float64

	// OnEvent is called for every session event on the analysis goroutine.
	OnEvent func(session.Event)
}

// App owns the capture devices and the session of one live run.
type App struct {
	config    Config
	camera    capture.Camera
	gate      *capture.MotionGate
	detector  detector.Detector
	assembler *landmark.Assembler

	mu      sync.RWMutex
	session *session.Session
	runner  *session.Runner
	inbox   *inbox
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
	started time.Time
}

// New creates an App. It prefers the MediaPipe detector and falls back to
// a mock detector that never finds anyone.
func New(config Config) *App {
	if config.MotionThresh <= 0 {
		config.MotionThresh = 1.0
	}
	if config.ActiveFPS <= 0 {
		config.ActiveFPS = ActiveFPS
	}
	if config.IdleFPS <= 0 || config.IdleFPS > config.ActiveFPS {
		config.IdleFPS = min(IdleFPS, config.ActiveFPS)
	}
	if config.IdleAfter <= 0 {
		config.IdleAfter = IdleAfter
	}

	a := &App{
		config:    config,
		gate:      capture.NewMotionGate(config.MotionThresh, config.IdleAfter),
		assembler: landmark.NewAssembler(),
	}
	if config.Video != "" {
		a.camera = capture.NewVideoFile(config.Video)
	} else {
		a.camera = capture.NewCamera(config.CameraID)
	}

	if mp, err := detector.NewMediaPipeDetector(config.Detector); err == nil {
		a.detector = mp
		slog.Info("app: using MediaPipe pose detection")
	} else {
		slog.Warn("app: MediaPipe not available, using mock detector", "error", err)
		a.detector = detector.NewMockDetector()
	}

	return a
}

// SetCamera replaces the frame source. Call before Start.
func (a *App) SetCamera(c capture.Camera) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.camera = c
}

// SetDetector sets the pose detector implementation to use.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector = d
}

// Detector returns the pose detector.
func (a *App) Detector() detector.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector
}

// Start opens the camera, creates the session and launches the capture,
// detection and analysis goroutines.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return nil
	}

	sess, err := session.New(a.config.Profile, a.config.Session)
	if err != nil {
		return err
	}
	if err := a.camera.Open(); err != nil {
		sess.Close()
		return err
	}
	a.camera.SetFPS(a.config.IdleFPS)
	a.gate.Reset()
	a.assembler.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	a.session = sess
	a.runner = session.NewRunner(sess, a.handle)
	a.inbox = newInbox()
	a.cancel = cancel
	a.done = make(chan struct{})
	a.started = time.Now()

	runner, in, cam, det, done := a.runner, a.inbox, a.camera, a.detector, a.done
	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		runner.Run(ctx)
	}()
	go func() {
		defer a.wg.Done()
		if det != nil {
			a.runDetection(ctx, det, in, runner)
		}
	}()
	go func() {
		defer a.wg.Done()
		defer close(done)
		a.runCapture(ctx, cam, det, in)
	}()

	slog.Info("app: pipeline started", "session", sess.ID(), "exercise", a.config.Profile.Key())
	return nil
}

// Done is closed when capture ends, either by Stop or at the end of a
// video file. It is nil before Start.
func (a *App) Done() <-chan struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.done
}

// Session returns the current session, nil before Start.
func (a *App) Session() *session.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// Stop halts the pipeline and releases the devices. The runner closes the
// session on its way out. Stop returns the final statistics.
func (a *App) Stop() session.Stats {
	a.mu.Lock()
	if a.cancel == nil {
		a.mu.Unlock()
		return session.Stats{}
	}
	a.cancel()
	a.cancel = nil
	sess, runner, in := a.session, a.runner, a.inbox
	a.mu.Unlock()

	a.wg.Wait()

	if err := a.camera.Close(); err != nil {
		slog.Warn("app: closing camera", "error", err)
	}
	a.gate.Close()
	if err := a.Detector().Close(); err != nil {
		slog.Warn("app: closing detector", "error", err)
	}

	stats := sess.Stats()
	rs := runner.Stats()
	slog.Info("app: pipeline stopped", "session", sess.ID(),
		"duration", time.Since(a.started).Round(time.Millisecond),
		"reps", stats.Reps, "correct", stats.Correct, "incorrect", stats.Incorrect,
		"abandoned", stats.Abandoned, "frames", stats.Frames, "dropped", rs.Dropped, "undetected", in.Dropped())
	return stats
}

// handle logs session events and forwards them to OnEvent.
func (a *App) handle(_ landmark.Frame, events []session.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case session.KindRepBoundary:
			slog.Info("app: rep", "rep", ev.Rep, "ts", ev.Timestamp)
		case session.KindAbandoned:
			slog.Info("app: attempt abandoned", "attempt", ev.Rep, "ts", ev.Timestamp)
		case session.KindFeedback, session.KindLiveFeedback, session.KindAttemptFeedback:
			slog.Info("app: feedback", "rep", ev.Rep, "kind", ev.Kind,
				"rule", ev.Feedback.Rule, "severity", ev.Feedback.Severity, "message", ev.Feedback.Message)
		case session.KindMisaligned:
			slog.Warn("app: subject not facing the camera", "offset", ev.Offset)
		default:
			slog.Debug("app: event", "kind", ev.Kind, "phase", ev.Phase, "ts", ev.Timestamp)
		}
		if a.config.OnEvent != nil {
			a.config.OnEvent(ev)
		}
	}
}
