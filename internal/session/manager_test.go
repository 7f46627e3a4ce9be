package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/physiopal/internal/catalog"
	"github.com/ayusman/physiopal/internal/detector"
	"github.com/ayusman/physiopal/internal/landmark"
	"github.com/ayusman/physiopal/internal/testutil"
)

func TestManager(t *testing.T) {
	m := NewManager(DefaultOptions())

	a, err := m.Open(squat(t))
	require.NoError(t, err)
	b, err := m.Open(legRaise(t))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, m.Len())

	got, ok := m.Get(a.ID())
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.ElementsMatch(t, []string{a.ID(), b.ID()}, m.IDs())

	require.NoError(t, m.Close(a.ID()))
	_, ok = m.Get(a.ID())
	assert.False(t, ok)
	assert.ErrorIs(t, m.Close(a.ID()), ErrUnknownSession)

	_, err = a.Process(squatSweep(90)[0])
	assert.ErrorIs(t, err, ErrSessionClosed)

	m.CloseAll()
	assert.Zero(t, m.Len())
	_, err = b.Process(squatSweep(90)[0])
	assert.ErrorIs(t, err, ErrSessionClosed)

	bad := squat(t)
	bad.Definitions = nil
	_, err = m.Open(bad)
	assert.ErrorIs(t, err, catalog.ErrInvalidProfile)
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	m := NewManager(Options{})
	a, err := m.Open(squat(t))
	require.NoError(t, err)
	b, err := m.Open(squat(t))
	require.NoError(t, err)

	processAll(t, a, squatSweep(90))

	assert.Equal(t, 1, a.Stats().Reps)
	assert.Zero(t, b.Stats().Reps)
	assert.Zero(t, b.Stats().Frames)
}

func TestRunner_LatestFrameWins(t *testing.T) {
	s, err := New(squat(t), Options{})
	require.NoError(t, err)

	got := make(chan landmark.Frame, 4)
	r := NewRunner(s, func(f landmark.Frame, _ []Event) { got <- f })

	frames := testutil.Frames(0, testutil.Hold(10, 3), detector.SquatPose)
	for _, f := range frames {
		require.True(t, r.Submit(f))
	}
	assert.Equal(t, uint64(2), r.Stats().Dropped)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case f := <-got:
		assert.Equal(t, frames[2].Timestamp, f.Timestamp)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not process the pending frame")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop on cancel")
	}

	assert.False(t, r.Submit(frames[0]))
	_, err = s.Process(frames[2])
	assert.ErrorIs(t, err, ErrSessionClosed)

	st := r.Stats()
	assert.Equal(t, uint64(3), st.Submitted)
	assert.Equal(t, uint64(1), st.Processed)
}

func TestRunner_Close(t *testing.T) {
	s, err := New(squat(t), Options{})
	require.NoError(t, err)
	r := NewRunner(s, nil)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	r.Close()
	r.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop on Close")
	}
	assert.Same(t, s, r.Session())
}
