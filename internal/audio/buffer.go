package audio

import (
	"sync"
	"time"
)

// FrameBuffer is a bounded FIFO between the capture source and the
// transcription workers. Push never blocks; when the buffer is full the
// oldest frame is discarded and counted.
type FrameBuffer struct {
	mu      sync.Mutex
	frames  []Frame
	head    int
	size    int
	dropped uint64
	closed  bool
	notify  chan struct{}
	done    chan struct{}
}

// NewFrameBuffer creates a buffer holding at most capacity frames.
func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameBuffer{
		frames: make([]Frame, capacity),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push enqueues a frame. It returns false if the frame was refused because
// the buffer is closed, or if an older frame had to be dropped to make room.
func (b *FrameBuffer) Push(f Frame) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}

	accepted := true
	if b.size == len(b.frames) {
		b.frames[b.head] = Frame{}
		b.head = (b.head + 1) % len(b.frames)
		b.size--
		b.dropped++
		accepted = false
	}
	b.frames[(b.head+b.size)%len(b.frames)] = f
	b.size++
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return accepted
}

// Pop returns the next frame, waiting up to timeout for one to arrive.
// The boolean is false on timeout, and immediately once the buffer is
// closed and empty.
func (b *FrameBuffer) Pop(timeout time.Duration) (Frame, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if f, ok := b.tryPop(); ok {
			return f, true
		}
		if b.Drained() {
			return Frame{}, false
		}

		select {
		case <-b.notify:
		case <-b.done:
		case <-timer.C:
			return b.tryPop()
		}
	}
}

func (b *FrameBuffer) tryPop() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size == 0 {
		return Frame{}, false
	}
	f := b.frames[b.head]
	b.frames[b.head] = Frame{}
	b.head = (b.head + 1) % len(b.frames)
	b.size--
	return f, true
}

// Close stops intake. Frames already queued can still be popped.
func (b *FrameBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

// Drained reports whether the buffer is closed and empty.
func (b *FrameBuffer) Drained() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed && b.size == 0
}

// Dropped returns the number of frames discarded on overflow.
func (b *FrameBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Len returns the number of queued frames.
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the buffer capacity.
func (b *FrameBuffer) Cap() int {
	return len(b.frames)
}
