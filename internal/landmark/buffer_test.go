package landmark

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameAt(ms int) Frame {
	return NewFrame(time.Duration(ms) * time.Millisecond)
}

func TestBuffer_WindowInsufficientData(t *testing.T) {
	b := NewBuffer(5)

	b.Push(frameAt(0))
	b.Push(frameAt(33))

	_, err := b.Window(3)
	require.ErrorIs(t, err, ErrInsufficientData)

	b.Push(frameAt(66))

	w, err := b.Window(3)
	require.NoError(t, err)
	require.Len(t, w, 3)
	assert.Equal(t, 0*time.Millisecond, w[0].Timestamp)
	assert.Equal(t, 66*time.Millisecond, w[2].Timestamp)
}

func TestBuffer_EvictsOldest(t *testing.T) {
	b := NewBuffer(3)
	for i := 0; i < 7; i++ {
		b.Push(frameAt(i * 10))
	}

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, uint64(7), b.Total())

	w, err := b.Window(3)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{40 * time.Millisecond, 50 * time.Millisecond, 60 * time.Millisecond},
		[]time.Duration{w[0].Timestamp, w[1].Timestamp, w[2].Timestamp})
	assert.Equal(t, uint64(5), w[0].Seq)
	assert.Equal(t, uint64(7), w[2].Seq)

	latest, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, 60*time.Millisecond, latest.Timestamp)
}

func TestBuffer_WindowLargerThanCapacity(t *testing.T) {
	b := NewBuffer(2)
	b.Push(frameAt(0))
	b.Push(frameAt(1))
	b.Push(frameAt(2))

	_, err := b.Window(3)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestBuffer_InvalidWindow(t *testing.T) {
	b := NewBuffer(2)
	b.Push(frameAt(0))

	_, err := b.Window(0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientData)
}

func TestBuffer_WindowIsACopy(t *testing.T) {
	b := NewBuffer(2)
	b.Push(frameAt(0))

	w, err := b.Window(1)
	require.NoError(t, err)
	w[0].Timestamp = time.Hour

	latest, _ := b.Latest()
	assert.Equal(t, time.Duration(0), latest.Timestamp)
}

func TestBuffer_DefaultCapacityAndReset(t *testing.T) {
	b := NewBuffer(0)
	assert.Equal(t, DefaultCapacity, b.Cap())

	b.Push(frameAt(0))
	b.Reset()

	assert.Equal(t, 0, b.Len())
	_, ok := b.Latest()
	assert.False(t, ok)
}
