package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ayusman/physiopal/internal/landmark"
)

// Handler receives the events of one processed frame. It runs on the
// runner goroutine.
type Handler func(frame landmark.Frame, events []Event)

// RunnerStats reports mailbox activity.
type RunnerStats struct {
	Submitted uint64
	Processed uint64
	Dropped   uint64
	Errors    uint64
}

// Runner decouples frame acquisition from analysis. Submit never blocks:
// the mailbox holds one frame and a newer frame replaces an unconsumed
// one. A single goroutine started by Run drains it into the session.
type Runner struct {
	session *Session
	handler Handler

	mu      sync.Mutex
	cond    *sync.Cond
	pending *landmark.Frame
	closed  bool
	stats   RunnerStats
}

// NewRunner wraps a session. handler may be nil.
func NewRunner(s *Session, handler Handler) *Runner {
	r := &Runner{session: s, handler: handler}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Session returns the wrapped session.
func (r *Runner) Session() *Session { return r.session }

// Submit places a frame in the mailbox, dropping any unconsumed frame.
// It reports false once the runner is closed.
func (r *Runner) Submit(f landmark.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if r.pending != nil {
		r.stats.Dropped++
	}
	r.stats.Submitted++
	r.pending = &f
	r.cond.Signal()
	return true
}

// next blocks until a frame is available or the runner closes.
func (r *Runner) next() (landmark.Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.pending == nil && !r.closed {
		r.cond.Wait()
	}
	if r.closed {
		return landmark.Frame{}, false
	}
	f := *r.pending
	r.pending = nil
	return f, true
}

// Run processes frames until ctx is cancelled or Close is called, then
// closes the session.
func (r *Runner) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, r.Close)
	defer stop()
	defer r.session.Close()

	for {
		f, ok := r.next()
		if !ok {
			return ctx.Err()
		}

		events, err := r.session.Process(f)
		r.mu.Lock()
		if err != nil {
			r.stats.Errors++
		} else {
			r.stats.Processed++
		}
		r.mu.Unlock()

		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return nil
			}
			slog.Warn("session: frame rejected", "session", r.session.ID(), "ts", f.Timestamp, "error", err)
			continue
		}
		if r.handler != nil {
			r.handler(f, events)
		}
	}
}

// Close stops Run. A frame still in the mailbox is discarded.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.pending != nil {
		r.pending = nil
		r.stats.Dropped++
	}
	r.cond.Broadcast()
}

// Stats returns a snapshot of the mailbox counters.
func (r *Runner) Stats() RunnerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
