// Package session runs the per-subject analysis pipeline: landmark buffer,
// angle engine, smoother, repetition machine and form evaluation.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/physiopal/internal/angle"
	"github.com/ayusman/physiopal/internal/catalog"
	"github.com/ayusman/physiopal/internal/form"
	"github.com/ayusman/physiopal/internal/landmark"
	"github.com/ayusman/physiopal/internal/rep"
	"github.com/ayusman/physiopal/internal/smoothing"
)

// ErrSessionClosed is returned when processing a frame after Close.
var ErrSessionClosed = errors.New("session closed")

// Session analyses one subject performing one exercise. Its state lives
// for the lifetime of the session and is shared with no other session.
type Session struct {
	id      string
	profile *catalog.Compiled
	opts    Options

	mu       sync.Mutex
	buffer   *landmark.Buffer
	engine   *angle.Engine
	smoother *smoothing.Smoother
	machine  *rep.Machine

	// measured excludes the alignment definition, which is last when present.
	measured  []angle.Definition
	driver    int
	alignment *catalog.Alignment

	misaligned   bool
	liveFired    map[string]bool
	liveFaulty   bool
	lastChange   time.Duration
	inactiveSent bool
	lastTS       time.Duration
	started      bool
	closed       bool
	repSeconds   []float64
	stats        Stats
}

// New validates the profile and options and returns a fresh session.
func New(profile catalog.Profile, opts Options) (*Session, error) {
	compiled, err := profile.Compile()
	if err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	opts = opts.withDefaults()

	machine, err := rep.NewMachine(profile.Template, opts.Dwell)
	if err != nil {
		return nil, err
	}

	measured := compiled.Definitions
	if profile.Alignment != nil {
		measured = measured[:len(measured)-1]
	}

	s := &Session{
		id:        uuid.NewString(),
		profile:   compiled,
		opts:      opts,
		buffer:    landmark.NewBuffer(opts.BufferCapacity),
		engine:    angle.NewEngine(opts.MinConfidence),
		smoother:  smoothing.New(opts.Smoothing),
		machine:   machine,
		measured:  measured,
		alignment: profile.Alignment,
		liveFired: make(map[string]bool),
	}
	for i, d := range measured {
		if d.Name == profile.Template.Signal {
			s.driver = i
		}
	}
	s.stats.Phase = profile.Template.Initial()
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Profile returns the profile the session was opened with.
func (s *Session) Profile() catalog.Profile { return s.profile.Profile }

// Process runs one frame through the pipeline and returns the events it
// produced, in order. Frames must arrive with increasing timestamps.
func (s *Session) Process(frame landmark.Frame) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	ts := frame.Timestamp
	if s.started && ts <= s.lastTS {
		return nil, fmt.Errorf("frame at %v after %v: %w", ts, s.lastTS, landmark.ErrOutOfOrder)
	}
	if !s.started {
		s.lastChange = ts
		s.started = true
	}
	s.lastTS = ts

	s.buffer.Push(frame)
	s.stats.Frames++

	samples := s.engine.Compute(frame, s.profile.Definitions)
	signals := make([]smoothing.Signal, len(samples))
	for i, sample := range samples {
		signals[i] = s.smoother.Update(sample)
	}
	if samples[s.driver].LowConfidence {
		s.stats.LowConfidenceFrames++
	}

	var events []Event

	if s.alignment != nil {
		offset := signals[len(signals)-1]
		if offset.Primed && offset.Value > s.alignment.MaxOffset {
			s.stats.MisalignedFrames++
			if !s.misaligned {
				s.misaligned = true
				events = append(events, Event{Kind: KindMisaligned, Timestamp: ts, Offset: offset.Value})
				slog.Debug("session: camera misaligned", "session", s.id, "offset", offset.Value)
			}
			return events, nil
		}
		s.misaligned = false
		signals = signals[:len(s.measured)]
	}

	if _, err := s.buffer.Window(s.opts.Warmup); err != nil {
		if errors.Is(err, landmark.ErrInsufficientData) {
			return events, nil
		}
		return nil, err
	}

	step := s.machine.Update(ts, signals)
	if step.Changed {
		s.lastChange = ts
		s.inactiveSent = false
		s.stats.Phase = step.To
		n := s.machine.Count() + 1
		if step.Boundary != nil {
			n = step.Boundary.Rep
		}
		events = append(events, Event{
			Kind:      KindPhase,
			Timestamp: ts,
			Rep:       n,
			From:      step.From,
			Phase:     step.To,
			Backward:  step.Backward,
		})
		if step.Backward && !s.machine.InRep() {
			s.resetLive()
		}
	}

	if a := step.Abandoned; a != nil {
		events = append(events, s.abandon(a)...)
	}
	if b := step.Boundary; b != nil {
		events = append(events, s.complete(b)...)
	} else if s.machine.InRep() {
		events = append(events, s.checkLive(ts)...)
	}

	if s.opts.InactivityTimeout > 0 && !s.inactiveSent && ts-s.lastChange >= s.opts.InactivityTimeout {
		s.inactiveSent = true
		events = append(events, Event{Kind: KindInactive, Timestamp: ts, Phase: s.stats.Phase})
		slog.Info("session: inactive", "session", s.id, "phase", s.stats.Phase, "idle", ts-s.lastChange)
	}

	return events, nil
}

func (s *Session) complete(b *rep.Boundary) []Event {
	traj := b.Trajectory
	feedback := form.Evaluate(traj, s.profile.Rules)

	s.stats.Reps = b.Rep
	s.repSeconds = append(s.repSeconds, traj.Duration().Seconds())
	s.stats.MeanRepSeconds = stat.Mean(s.repSeconds, nil)
	if form.Faulty(feedback) || s.liveFaulty {
		s.stats.Incorrect++
	} else {
		s.stats.Correct++
	}
	s.resetLive()

	events := make([]Event, 0, len(feedback)+1)
	events = append(events, Event{Kind: KindRepBoundary, Timestamp: b.At, Rep: b.Rep, Trajectory: &traj})
	for i := range feedback {
		events = append(events, Event{Kind: KindFeedback, Timestamp: b.At, Rep: b.Rep, Feedback: &feedback[i]})
	}

	slog.Info("session: rep complete",
		"session", s.id,
		"exercise", s.profile.Profile.Key(),
		"rep", b.Rep,
		"correct", s.stats.Correct,
		"incorrect", s.stats.Incorrect,
		"feedback", len(feedback))
	return events
}

// abandon reports an attempt that fell back to the initial phase. The rep
// counter and the correct/incorrect tallies are unchanged.
func (s *Session) abandon(a *rep.Boundary) []Event {
	traj := a.Trajectory
	feedback := form.Violations(traj, s.profile.Attempt)
	s.stats.Abandoned++

	events := make([]Event, 0, len(feedback)+1)
	events = append(events, Event{Kind: KindAbandoned, Timestamp: a.At, Rep: a.Rep, Trajectory: &traj})
	for i := range feedback {
		events = append(events, Event{Kind: KindAttemptFeedback, Timestamp: a.At, Rep: a.Rep, Feedback: &feedback[i]})
	}

	slog.Info("session: attempt abandoned",
		"session", s.id,
		"exercise", s.profile.Profile.Key(),
		"attempt", a.Rep,
		"feedback", len(feedback))
	return events
}

// checkLive evaluates live rules against the in-progress trajectory. Each
// rule fires at most once per repetition.
func (s *Session) checkLive(ts time.Duration) []Event {
	if len(s.profile.Live) == 0 {
		return nil
	}
	var events []Event
	traj := s.machine.Trajectory()
	for _, r := range s.profile.Live {
		if s.liveFired[r.Name()] {
			continue
		}
		msg, fired := r.Check(traj)
		if !fired {
			continue
		}
		s.liveFired[r.Name()] = true
		if r.Severity() >= form.Warning {
			s.liveFaulty = true
		}
		events = append(events, Event{
			Kind:      KindLiveFeedback,
			Timestamp: ts,
			Rep:       traj.Rep,
			Feedback: &form.Feedback{
				Rep:       traj.Rep,
				Rule:      r.Name(),
				Severity:  r.Severity(),
				Message:   msg,
				Timestamp: ts,
			},
		})
	}
	return events
}

func (s *Session) resetLive() {
	clear(s.liveFired)
	s.liveFaulty = false
}

// State returns the repetition machine's current state. After Close only
// the last phase and the count remain.
func (s *Session) State() rep.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine == nil {
		return rep.State{Phase: s.stats.Phase, Count: s.stats.Reps, Min: math.NaN(), Max: math.NaN()}
	}
	return s.machine.State()
}

// Trajectory returns the in-progress repetition trajectory, empty after
// Close.
func (s *Session) Trajectory() rep.Trajectory {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine == nil {
		return rep.Trajectory{}
	}
	return s.machine.Trajectory()
}

// Stats returns the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close ends the session and releases its buffer, smoother and machine.
// Later calls to Process fail with ErrSessionClosed; Stats stays readable.
// Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.buffer.Reset()
	s.smoother.Reset()
	s.buffer, s.engine, s.smoother, s.machine = nil, nil, nil, nil
	s.liveFired, s.repSeconds = nil, nil
	slog.Info("session: closed", "session", s.id, "reps", s.stats.Reps, "frames", s.stats.Frames)
	return nil
}
