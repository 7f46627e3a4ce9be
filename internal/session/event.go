package session

import (
	"time"

	"github.com/ayusman/physiopal/internal/form"
	"github.com/ayusman/physiopal/internal/rep"
)

// EventKind names an event for the presentation layer.
type EventKind string

const (
	KindPhase        EventKind = "phase"
	KindRepBoundary  EventKind = "rep_boundary"
	KindFeedback     EventKind = "feedback"
	KindLiveFeedback EventKind = "live_feedback"
	KindMisaligned   EventKind = "misaligned"
	KindInactive     EventKind = "inactive"

	// KindAbandoned marks an attempt that returned to the initial phase
	// without completing. It carries the attempt's trajectory and is
	// followed by one attempt_feedback event per violated attempt rule.
	KindAbandoned       EventKind = "abandoned"
	KindAttemptFeedback EventKind = "attempt_feedback"
)

// Event is one notification produced while processing a frame.
type Event struct {
	Kind      EventKind     `json:"kind"`
	Timestamp time.Duration `json:"timestamp"`
	Rep       int           `json:"rep,omitempty"`

	// Phase events.
	From     string `json:"from,omitempty"`
	Phase    string `json:"phase,omitempty"`
	Backward bool   `json:"backward,omitempty"`

	Feedback   *form.Feedback  `json:"feedback,omitempty"`
	Trajectory *rep.Trajectory `json:"trajectory,omitempty"`

	// Offset is the alignment angle of a misaligned event.
	Offset float64 `json:"offset,omitempty"`
}

// Stats summarises a session.
type Stats struct {
	Reps                int     `json:"reps"`
	Correct             int     `json:"correct"`
	Incorrect           int     `json:"incorrect"`
	Abandoned           int     `json:"abandoned"`
	Frames              int     `json:"frames"`
	LowConfidenceFrames int     `json:"low_confidence_frames"`
	MisalignedFrames    int     `json:"misaligned_frames"`
	MeanRepSeconds      float64 `json:"mean_rep_seconds"`
	Phase               string  `json:"phase"`
}
