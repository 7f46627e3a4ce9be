package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/physiopal/internal/detector"
	"github.com/ayusman/physiopal/internal/form"
	"github.com/ayusman/physiopal/internal/landmark"
	"github.com/ayusman/physiopal/internal/session"
	"github.com/ayusman/physiopal/internal/store"
	"github.com/ayusman/physiopal/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	srv := New(Config{Store: s, Session: session.DefaultOptions()})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, stop func(ServerMessage) bool) []ServerMessage {
	t.Helper()
	var out []ServerMessage
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		out = append(out, msg)
		if stop(msg) {
			return out
		}
	}
}

func TestSessionSocket_CountsRep(t *testing.T) {
	srv, ts := newTestServer(t)

	conn := dial(t, ts, "?exercise=squat&level=beginner")

	hello := readUntil(t, conn, func(ServerMessage) bool { return true })[0]
	assert.Equal(t, MessageSession, hello.Type)
	assert.Equal(t, "squat/beginner", hello.Exercise)
	assert.Equal(t, []string{"standing", "descending", "bottom", "ascending"}, hello.Phases)
	require.NotEmpty(t, hello.Session)

	values := testutil.Concat(testutil.Hold(10, 10), testutil.Path(2, 10, 90, 10), testutil.Hold(10, 10))
	for i, v := range values {
		ts := time.Duration(i) * testutil.FrameInterval
		require.NoError(t, conn.WriteJSON(landmark.NewMessage(ts, detector.SquatPose(v))))
	}

	msgs := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == MessageStats })
	stats := msgs[len(msgs)-1].Stats
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Reps)
	assert.Equal(t, 1, stats.Correct)

	var feedback []*form.Feedback
	for _, m := range msgs {
		if m.Type == MessageEvent && m.Event.Kind == session.KindFeedback {
			feedback = append(feedback, m.Event.Feedback)
		}
	}
	require.Len(t, feedback, 1)
	assert.Equal(t, form.CorrectForm, feedback[0].Rule)

	// Replayed timestamps are rejected without closing the socket.
	require.NoError(t, conn.WriteJSON(landmark.NewMessage(0, detector.SquatPose(10))))
	errMsg := readUntil(t, conn, func(ServerMessage) bool { return true })[0]
	assert.Equal(t, MessageError, errMsg.Type)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	require.Eventually(t, func() bool { return srv.Sessions().Len() == 0 }, 5*time.Second, 10*time.Millisecond)
	_, open := srv.Sessions().Get(hello.Session)
	assert.False(t, open)
}

func TestSessionSocket_BadFrameKeepsSession(t *testing.T) {
	srv, ts := newTestServer(t)
	conn := dial(t, ts, "")
	defer conn.Close()
	readUntil(t, conn, func(ServerMessage) bool { return true })

	bad := []string{
		`{"t": 0, "landmarks": [{"joint": "ELBOW_OF_DOOM", "x": 0.5, "y": 0.5}]}`,
		`{oops`,
	}
	for _, payload := range bad {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
		msg := readUntil(t, conn, func(ServerMessage) bool { return true })[0]
		assert.Equal(t, MessageError, msg.Type, payload)
		assert.Contains(t, msg.Error, "invalid frame")
	}

	// A valid frame is still processed: replaying its timestamp is rejected.
	require.NoError(t, conn.WriteJSON(landmark.NewMessage(0, detector.SquatPose(10))))
	require.NoError(t, conn.WriteJSON(landmark.NewMessage(0, detector.SquatPose(10))))
	msg := readUntil(t, conn, func(ServerMessage) bool { return true })[0]
	assert.Equal(t, MessageError, msg.Type)
	assert.NotContains(t, msg.Error, "invalid frame")
	assert.Equal(t, 1, srv.Sessions().Len())
}

func TestSessionSocket_OversizedFrameClosesSession(t *testing.T) {
	srv, ts := newTestServer(t)
	conn := dial(t, ts, "")
	defer conn.Close()
	readUntil(t, conn, func(ServerMessage) bool { return true })

	huge := `{"t": 0, "pad": "` + strings.Repeat("x", 2*maxFrameSize) + `"}`
	// The server may hang up before the whole frame is written.
	_ = conn.WriteMessage(websocket.TextMessage, []byte(huge))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.Eventually(t, func() bool { return srv.Sessions().Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestSessionSocket_UnknownExercise(t *testing.T) {
	_, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions?exercise=plank"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ExerciseWorkflow(t *testing.T) {
	_, ts := newTestServer(t)
	client := ts.Client()

	doc := `{"name": "wall_sit", "level": "beginner",
		"definitions": [{"name": "knee", "vertex": "LEFT_KNEE", "a": "LEFT_HIP", "b": "VERTICAL"}],
		"template": {"signal": "knee", "phases": ["up", "down"],
			"transitions": [{"threshold": 60, "crossing": "above"}, {"threshold": 40, "crossing": "below"}]},
		"rules": []}`

	// 1. Create
	resp, err := client.Post(ts.URL+"/api/exercises", "application/json", bytes.NewBufferString(doc))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	assert.Equal(t, "wall_sit/beginner", created.Key)

	// 2. The stored profile can drive a session.
	conn := dial(t, ts, "?exercise=wall_sit&level=beginner")
	hello := readUntil(t, conn, func(ServerMessage) bool { return true })[0]
	assert.Equal(t, []string{"up", "down"}, hello.Phases)
	conn.Close()

	// 3. Delete
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/exercises/"+created.ID, nil)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// 4. The deleted profile no longer resolves.
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions?exercise=wall_sit&level=beginner"
	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
}
