package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/physiopal/internal/catalog"
	"github.com/ayusman/physiopal/internal/landmark"
	"github.com/ayusman/physiopal/internal/server/api"
	"github.com/ayusman/physiopal/internal/session"
	"github.com/ayusman/physiopal/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// maxFrameSize bounds one client message. A full 33 point frame is about
// 5 KB of JSON.
const maxFrameSize = 64 << 10

// Server message types.
const (
	MessageSession = "session"
	MessageEvent   = "event"
	MessageStats   = "stats"
	MessageError   = "error"
)

// ServerMessage is one JSON message sent to a session client.
type ServerMessage struct {
	Type     string         `json:"type"`
	Session  string         `json:"session,omitempty"`
	Exercise string         `json:"exercise,omitempty"`
	Phases   []string       `json:"phases,omitempty"`
	Event    *session.Event `json:"event,omitempty"`
	Stats    *session.Stats `json:"stats,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// SessionHandler runs one analysis session per WebSocket connection.
// The client picks the profile with ?exercise=&level= and streams
// landmark.Message frames; every frame is processed before the next is
// read, and its events are written back in order. A stats message follows
// every completed rep.
type SessionHandler struct {
	store   *store.Store
	manager *session.Manager
}

// NewSessionHandler creates a SessionHandler. s may be nil.
func NewSessionHandler(s *store.Store, m *session.Manager) *SessionHandler {
	return &SessionHandler{store: s, manager: m}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	exercise, level := q.Get("exercise"), q.Get("level")
	if exercise == "" {
		exercise = catalog.Squat
	}
	if level == "" {
		level = catalog.Beginner
	}

	profile, err := api.Resolve(h.store, exercise, level)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Unknown exercise", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load exercise", http.StatusInternalServerError)
		return
	}

	sess, err := h.manager.Open(profile)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	started := time.Now()
	defer h.finish(sess, started)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("server: websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	hello := ServerMessage{
		Type:     MessageSession,
		Session:  sess.ID(),
		Exercise: profile.Key(),
		Phases:   profile.Template.Phases,
	}
	if err := conn.WriteJSON(hello); err != nil {
		return
	}

	conn.SetReadLimit(maxFrameSize)
	asm := landmark.NewAssembler()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("server: session connection", "session", sess.ID(), "error", err)
			}
			return
		}

		var msg landmark.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("server: bad frame", "session", sess.ID(), "error", err)
			if conn.WriteJSON(ServerMessage{Type: MessageError, Error: "invalid frame: " + err.Error()}) != nil {
				return
			}
			continue
		}

		frame, err := asm.Assemble(msg.Timestamp(), msg.Pose())
		if err == nil {
			var events []session.Event
			events, err = sess.Process(frame)
			if err == nil {
				if !send(conn, sess, events) {
					return
				}
				continue
			}
		}
		if conn.WriteJSON(ServerMessage{Type: MessageError, Error: err.Error()}) != nil {
			return
		}
	}
}

// send writes the events of one frame, followed by the session stats when
// a rep completed or an attempt was abandoned.
func send(conn *websocket.Conn, sess *session.Session, events []session.Event) bool {
	var boundary bool
	for i := range events {
		if err := conn.WriteJSON(ServerMessage{Type: MessageEvent, Event: &events[i]}); err != nil {
			return false
		}
		switch events[i].Kind {
		case session.KindRepBoundary, session.KindAbandoned:
			boundary = true
		}
	}
	if boundary {
		stats := sess.Stats()
		return conn.WriteJSON(ServerMessage{Type: MessageStats, Session: sess.ID(), Stats: &stats}) == nil
	}
	return true
}

// finish logs the session summary and closes the session.
func (h *SessionHandler) finish(sess *session.Session, started time.Time) {
	stats := sess.Stats()
	slog.Info("server: session ended", "session", sess.ID(), "exercise", sess.Profile().Key(),
		"duration", time.Since(started).Round(time.Millisecond), "reps", stats.Reps,
		"correct", stats.Correct, "incorrect", stats.Incorrect, "frames", stats.Frames)

	if err := h.manager.Close(sess.ID()); err != nil {
		slog.Warn("server: closing session", "session", sess.ID(), "error", err)
	}
}
