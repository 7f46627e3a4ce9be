package landmark

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is returned when fewer frames have been seen than a
// caller asked for. It means "not ready yet", not a failure.
var ErrInsufficientData = errors.New("insufficient data")

// DefaultCapacity covers the default smoothing horizon with headroom.
const DefaultCapacity = 30

// Buffer keeps the most recent frames in a fixed-capacity ring.
// It is not safe for concurrent use; each session owns its own buffer.
type Buffer struct {
	frames []Frame
	head   int // index of the next write
	count  int
	total  uint64
}

// NewBuffer creates a Buffer holding up to capacity frames.
// Non-positive capacities fall back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{frames: make([]Frame, capacity)}
}

// Push appends a frame, evicting the oldest one when the buffer is full.
func (b *Buffer) Push(f Frame) {
	b.total++
	f.Seq = b.total
	b.frames[b.head] = f
	b.head = (b.head + 1) % len(b.frames)
	if b.count < len(b.frames) {
		b.count++
	}
}

// Window returns the most recent size frames, oldest first.
// It fails with ErrInsufficientData until that many frames are held.
func (b *Buffer) Window(size int) ([]Frame, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size %d: must be positive", size)
	}
	if size > b.count {
		return nil, fmt.Errorf("window of %d frames, have %d: %w", size, b.count, ErrInsufficientData)
	}

	out := make([]Frame, size)
	start := b.head - size
	if start < 0 {
		start += len(b.frames)
	}
	for i := 0; i < size; i++ {
		out[i] = b.frames[(start+i)%len(b.frames)]
	}
	return out, nil
}

// Latest returns the most recently pushed frame.
func (b *Buffer) Latest() (Frame, bool) {
	if b.count == 0 {
		return Frame{}, false
	}
	i := b.head - 1
	if i < 0 {
		i += len(b.frames)
	}
	return b.frames[i], true
}

// Len returns the number of frames currently held.
func (b *Buffer) Len() int { return b.count }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return len(b.frames) }

// Total returns how many frames have ever been pushed.
func (b *Buffer) Total() uint64 { return b.total }

// Reset drops every held frame.
func (b *Buffer) Reset() {
	for i := range b.frames {
		b.frames[i] = Frame{}
	}
	b.head, b.count, b.total = 0, 0, 0
}
