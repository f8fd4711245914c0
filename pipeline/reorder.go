package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
)

// ReorderBuffer reconciles out-of-order synthesis completions with the
// playback order. Artifacts are held keyed by index until the next
// expected index arrives, then the maximal contiguous prefix (failure
// placeholders included) is released into the playback buffer in
// strictly ascending index order.
//
// Insert holds the buffer lock across the release so concurrent
// inserts cannot interleave their prefixes; Pending stays lock-free so
// backpressure checks never block behind a release.
type ReorderBuffer struct {
	mu      sync.Mutex
	held    map[uint]*AudioArtifact
	next    uint
	pending atomic.Int64
	sink    *PlaybackBuffer
}

// NewReorderBuffer creates a reorder buffer releasing into sink,
// starting at index 0.
func NewReorderBuffer(sink *PlaybackBuffer) *ReorderBuffer {
	return &ReorderBuffer{
		held: make(map[uint]*AudioArtifact),
		sink: sink,
	}
}

// Insert adds an artifact and releases any contiguous prefix into the
// playback buffer. It blocks while the playback buffer is full.
func (r *ReorderBuffer) Insert(ctx context.Context, a *AudioArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.held[a.Index] = a
	r.pending.Add(1)

	for {
		art, ok := r.held[r.next]
		if !ok {
			return nil
		}
		if err := r.sink.Enqueue(ctx, art); err != nil {
			return err
		}
		delete(r.held, r.next)
		r.pending.Add(-1)
		r.next++
	}
}

// Pending returns the number of artifacts awaiting release. Safe to
// call while an Insert is blocked on the playback buffer.
func (r *ReorderBuffer) Pending() int {
	return int(r.pending.Load())
}

// NextIndex returns the next index the buffer will release.
func (r *ReorderBuffer) NextIndex() uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}
