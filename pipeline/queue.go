package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize bounds the work queue when no size is configured.
const DefaultQueueSize = 16

// WorkQueue is the bounded chunk queue between the feeder and the
// synthesis workers. It has a single producer: only the feeder pushes,
// and only the feeder closes it once the source is exhausted. Workers
// drain remaining chunks after Close before seeing ErrQueueClosed.
type WorkQueue struct {
	ch     chan TextChunk
	closed atomic.Bool
	once   sync.Once
}

// NewWorkQueue creates a work queue holding at most size chunks. A
// size of 0 or less uses DefaultQueueSize.
func NewWorkQueue(size int) *WorkQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &WorkQueue{ch: make(chan TextChunk, size)}
}

// Push enqueues a chunk, blocking while the queue is full.
func (q *WorkQueue) Push(ctx context.Context, c TextChunk) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop dequeues the next chunk, blocking while the queue is empty.
// After Close, Pop keeps returning buffered chunks until the queue is
// empty, then ErrQueueClosed.
func (q *WorkQueue) Pop(ctx context.Context) (TextChunk, error) {
	select {
	case c, ok := <-q.ch:
		if !ok {
			return TextChunk{}, ErrQueueClosed
		}
		return c, nil
	case <-ctx.Done():
		return TextChunk{}, ctx.Err()
	}
}

// Len returns the number of buffered chunks.
func (q *WorkQueue) Len() int {
	return len(q.ch)
}

// Close marks the queue as complete. Must be called by the producer
// after its final Push.
func (q *WorkQueue) Close() {
	q.once.Do(func() {
		q.closed.Store(true)
		close(q.ch)
	})
}
