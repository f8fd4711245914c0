package pipeline

import (
	"context"
	"fmt"
	"sync"
)

// Playback buffer defaults.
const (
	DefaultBufferCapacity = 5
	DefaultLowWatermark   = 2
	DefaultHighWatermark  = 8
)

// PlaybackBuffer is a bounded FIFO of in-order artifacts between the
// reorder buffer and the controller. Enqueue blocks at capacity;
// Dequeue blocks when empty. The high watermark throttles the workers
// through WaitBelowCombined, counting buffered artifacts together with
// the reorder buffer's pending count.
//
// Waiters are woken by Enqueue, Dequeue, Finish, and Close; callers
// must close the buffer on cancellation so condition waits observe it.
type PlaybackBuffer struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	items    []*AudioArtifact
	capacity int
	low      int
	high     int

	finished bool // producer done, drain remaining then ErrBufferDrained
	closed   bool
}

// NewPlaybackBuffer creates a playback buffer. Zero or negative values
// take the defaults.
func NewPlaybackBuffer(capacity, low, high int) (*PlaybackBuffer, error) {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	if low <= 0 {
		low = DefaultLowWatermark
	}
	if high <= 0 {
		high = DefaultHighWatermark
	}
	if low > capacity {
		return nil, fmt.Errorf("pipeline: low watermark %d exceeds capacity %d", low, capacity)
	}
	if high < capacity {
		return nil, fmt.Errorf("pipeline: high watermark %d below capacity %d", high, capacity)
	}

	b := &PlaybackBuffer{
		items:    make([]*AudioArtifact, 0, capacity),
		capacity: capacity,
		low:      low,
		high:     high,
	}
	b.notEmpty = sync.NewCond(&b.mu)
	b.notFull = sync.NewCond(&b.mu)
	return b, nil
}

// Enqueue appends an artifact, blocking while the buffer is at
// capacity.
func (b *PlaybackBuffer) Enqueue(ctx context.Context, a *AudioArtifact) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items) >= b.capacity && !b.closed && ctx.Err() == nil {
		b.notFull.Wait()
	}
	if b.closed {
		return ErrBufferClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.finished {
		return ErrBufferDrained
	}

	b.items = append(b.items, a)
	b.notEmpty.Broadcast()
	return nil
}

// Dequeue removes and returns the oldest artifact, blocking while the
// buffer is empty. Once the producer has called Finish and the buffer
// drains, Dequeue returns ErrBufferDrained.
func (b *PlaybackBuffer) Dequeue(ctx context.Context) (*AudioArtifact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items) == 0 && !b.closed && !b.finished && ctx.Err() == nil {
		b.notEmpty.Wait()
	}
	if b.closed {
		return nil, ErrBufferClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(b.items) == 0 {
		return nil, ErrBufferDrained
	}

	a := b.items[0]
	b.items[0] = nil
	b.items = b.items[1:]
	b.notFull.Broadcast()
	return a, nil
}

// Peek returns the oldest artifact without removing it.
func (b *PlaybackBuffer) Peek() (*AudioArtifact, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil, false
	}
	return b.items[0], true
}

// Size returns the current number of buffered artifacts without
// consuming.
func (b *PlaybackBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Capacity returns the maximum number of buffered artifacts.
func (b *PlaybackBuffer) Capacity() int { return b.capacity }

// LowWatermark returns the prebuffer threshold.
func (b *PlaybackBuffer) LowWatermark() int { return b.low }

// HighWatermark returns the combined backpressure threshold.
func (b *PlaybackBuffer) HighWatermark() int { return b.high }

// WaitAtLeast blocks until at least n artifacts are buffered, the
// producer finishes, or the buffer closes.
func (b *PlaybackBuffer) WaitAtLeast(ctx context.Context, n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items) < n && !b.closed && !b.finished && ctx.Err() == nil {
		b.notEmpty.Wait()
	}
	if b.closed {
		return ErrBufferClosed
	}
	return ctx.Err()
}

// WaitBelowCombined blocks while the buffered count plus pending() is
// at or above the high watermark. pending must be safe to call without
// external locks.
func (b *PlaybackBuffer) WaitBelowCombined(ctx context.Context, pending func() int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items)+pending() >= b.high && !b.closed && ctx.Err() == nil {
		b.notFull.Wait()
	}
	if b.closed {
		return ErrBufferClosed
	}
	return ctx.Err()
}

// Finish marks the producer side complete. Buffered artifacts remain
// consumable; an empty buffer then reports ErrBufferDrained.
func (b *PlaybackBuffer) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finished = true
	b.notEmpty.Broadcast()
}

// Close discards all buffered artifacts and wakes every waiter.
func (b *PlaybackBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for i := range b.items {
		b.items[i] = nil
	}
	b.items = b.items[:0]
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
	return nil
}
