package stream

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Dequeue after Close. Frames still sitting in the
// ring when it closes are dropped with the session.
var ErrClosed = errors.New("stream: ring closed")

// Ring is a fixed-capacity circular store of complete frames backed by one
// contiguous arena of frame-sized slots.
//
// The producer side never blocks. Enqueue on a full ring hands back the
// current write slot again, so the producer overwrites the most recently
// written unread frame instead of stalling capture: a consumer that keeps up
// with the camera sees every frame, a slow one silently loses frames. At
// most capacity-1 frames are ever unread, which keeps the producer off the
// slot the consumer is copying out of.
type Ring struct {
	frameSize int
	capacity  int

	mu        sync.Mutex
	hasFrame  *sync.Cond
	arena     []byte
	head      int
	tail      int
	available int
	drops     uint64
	closed    bool
}

// NewRing allocates a ring of capacity slots of frameSize bytes each.
// Capacities below 2 are raised to 2; one slot is always in the producer's
// hands, so the effective queue depth is capacity-1.
func NewRing(frameSize, capacity int) *Ring {
	if capacity < 2 {
		capacity = 2
	}
	r := &Ring{
		frameSize: frameSize,
		capacity:  capacity,
		arena:     make([]byte, frameSize*capacity),
	}
	r.hasFrame = sync.NewCond(&r.mu)
	return r
}

func (r *Ring) slot(i int) []byte {
	off := i * r.frameSize
	return r.arena[off : off+r.frameSize : off+r.frameSize]
}

// WriteSlot returns the slot the producer fills first, before any Enqueue.
func (r *Ring) WriteSlot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slot(r.head)
}

// Enqueue publishes the frame the producer just finished writing and returns
// the next slot to fill. Producer side only; never blocks. When capacity-1
// frames are already unread the write position does not advance and the same
// slot is returned again.
func (r *Ring) Enqueue() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.available >= r.capacity-1 {
		r.drops++
		return r.slot(r.head)
	}

	r.head = (r.head + 1) % r.capacity
	r.available++
	r.hasFrame.Signal()
	return r.slot(r.head)
}

// Dequeue blocks until a frame is available and returns an owned copy of it.
// The internal slot is released for reuse before returning, so the copy is
// the only safe view of the frame. Returns ErrClosed once the ring is
// closed.
func (r *Ring) Dequeue() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.available == 0 && !r.closed {
		r.hasFrame.Wait()
	}
	if r.closed {
		return nil, ErrClosed
	}

	out := make([]byte, r.frameSize)
	copy(out, r.slot(r.tail))
	r.tail = (r.tail + 1) % r.capacity
	r.available--
	return out, nil
}

// Close wakes all blocked consumers. Safe to call more than once.
func (r *Ring) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.hasFrame.Broadcast()
}

// Available reports how many complete frames are waiting to be dequeued.
func (r *Ring) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available
}

// Drops reports how many enqueues overwrote an undelivered frame.
func (r *Ring) Drops() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drops
}

// Capacity returns the slot count, including the producer's write slot.
func (r *Ring) Capacity() int { return r.capacity }

// FrameSize returns the size in bytes of one slot.
func (r *Ring) FrameSize() int { return r.frameSize }
