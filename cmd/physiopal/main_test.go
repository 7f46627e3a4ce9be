package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/physiopal/internal/catalog"
	"github.com/ayusman/physiopal/internal/detector"
	"github.com/ayusman/physiopal/internal/landmark"
	"github.com/ayusman/physiopal/internal/session"
	"github.com/ayusman/physiopal/internal/testutil"
)

func recording(t *testing.T, values []float64) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := landmark.NewEncoder(&buf)
	for i, v := range values {
		ts := time.Duration(i) * testutil.FrameInterval
		require.NoError(t, enc.Encode(landmark.NewMessage(ts, detector.LegRaisePose(v))))
	}
	return &buf
}

func TestRunReplay(t *testing.T) {
	p, ok := catalog.Lookup(catalog.LegRaise, catalog.Beginner)
	require.True(t, ok)
	sess, err := session.New(p, session.DefaultOptions())
	require.NoError(t, err)
	defer sess.Close()

	values := testutil.Concat(
		testutil.Hold(5, 10),
		testutil.Path(1.5, 5, 80),
		testutil.Hold(80, 60),
		testutil.Path(1.5, 80, 5),
		testutil.Hold(5, 15),
	)
	in := recording(t, values)
	// A duplicated message is skipped, not fatal.
	in.WriteString(`{"t": 0, "landmarks": []}` + "\n")

	var out bytes.Buffer
	stats, err := runReplay(sess, landmark.NewDecoder(in), json.NewEncoder(&out))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Reps)
	assert.Equal(t, len(values), stats.Frames)

	var lines []replayLine
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var l replayLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		lines = append(lines, l)
	}
	require.NotEmpty(t, lines)

	last := lines[len(lines)-1]
	require.NotNil(t, last.Stats)
	assert.Equal(t, 1, last.Stats.Reps)

	var boundaries int
	for _, l := range lines[:len(lines)-1] {
		require.NotNil(t, l.Event)
		if l.Event.Kind == session.KindRepBoundary {
			boundaries++
		}
	}
	assert.Equal(t, 1, boundaries)
}

func TestRunReplay_BadLine(t *testing.T) {
	p, _ := catalog.Lookup(catalog.Squat, catalog.Beginner)
	sess, err := session.New(p, session.DefaultOptions())
	require.NoError(t, err)
	defer sess.Close()

	_, err = runReplay(sess, landmark.NewDecoder(bytes.NewBufferString("{not json\n")), json.NewEncoder(&bytes.Buffer{}))
	assert.Error(t, err)
}
