// Package framebuf keeps a bounded history of recently decoded frames per
// stream so that a recording window around a confirmed violation can be
// materialized after the fact.
package framebuf

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// ErrNotFound is returned when the requested frame index has already been
// evicted or never arrived
var ErrNotFound = errors.New("framebuf: frame not found")

// Frame is a single buffered video frame with its pipeline frame index
type Frame struct {
	// Index is the monotonically increasing frame number within the stream
	Index int
	// Img is the decoded frame image
	Img gocv.Mat
}

// Buffer is a fixed-capacity ring of recent frames for one stream with
// FIFO eviction. The stream's pipeline stage is the single writer,
// materialization tasks read cloned windows, so reads never race eviction.
type Buffer struct {
	mu     sync.Mutex
	frames []Frame
	head   int
	count  int
}

// NewBuffer creates a frame buffer holding at most capacity frames
func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		frames: make([]Frame, capacity),
	}
}

// Append adds a frame, evicting and freeing the oldest one when the buffer
// is at capacity
func (b *Buffer) Append(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == len(b.frames) {
		b.frames[b.head].Img.Close()
		b.frames[b.head] = f
		b.head = (b.head + 1) % len(b.frames)
		return
	}

	b.frames[(b.head+b.count)%len(b.frames)] = f
	b.count++
}

// Len returns the number of buffered frames
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// at returns the i-th oldest buffered frame. Caller must hold the lock.
func (b *Buffer) at(i int) Frame {
	return b.frames[(b.head+i)%len(b.frames)]
}

// Get returns a clone of the frame with the exact index
func (b *Buffer) Get(index int) (Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := 0; i < b.count; i++ {
		f := b.at(i)

		if f.Index == index {
			return Frame{Index: f.Index, Img: f.Img.Clone()}, nil
		}
	}

	return Frame{}, ErrNotFound
}

// Window returns length frames around the center index. When enough
// history is retained the window is the inclusive range
// [center-length/2, center+length/2]. When the oldest retained frame is
// newer than the window start the oldest length frames are returned
// instead; callers must tolerate this degraded, off-center window.
func (b *Buffer) Window(center, length int) []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	start := center - length/2

	if b.at(0).Index <= start {
		end := center + length/2
		out := make([]Frame, 0, length)

		for i := 0; i < b.count; i++ {
			f := b.at(i)

			if f.Index >= start && f.Index <= end {
				out = append(out, Frame{Index: f.Index, Img: f.Img.Clone()})
			}
		}

		return out
	}

	// not enough history for the trigger frame to sit in the middle
	n := length

	if n > b.count {
		n = b.count
	}

	out := make([]Frame, 0, n)

	for i := 0; i < n; i++ {
		f := b.at(i)
		out = append(out, Frame{Index: f.Index, Img: f.Img.Clone()})
	}

	return out
}

// Close frees every buffered frame
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := 0; i < b.count; i++ {
		b.at(i).Img.Close()
	}

	b.head = 0
	b.count = 0
}
