// Package form evaluates completed repetitions against declarative rules
// and produces feedback events.
package form

import (
	"fmt"
	"strings"
	"time"
)

// Severity ranks feedback.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	if s < Info || s > Error {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "info":
		*s = Info
	case "warning", "warn":
		*s = Warning
	case "error":
		*s = Error
	default:
		return fmt.Errorf("unknown severity %q", string(text))
	}
	return nil
}

// CorrectForm is the rule name reported when a repetition breaks no rule.
const CorrectForm = "correct_form"

// Feedback is one evaluated outcome for a repetition.
type Feedback struct {
	Rep       int           `json:"rep"`
	Rule      string        `json:"rule"`
	Severity  Severity      `json:"severity"`
	Message   string        `json:"message"`
	Timestamp time.Duration `json:"timestamp"`
}

// Faulty reports whether the feedback marks the repetition as incorrect.
func (f Feedback) Faulty() bool {
	return f.Severity >= Warning
}
