package pipeline

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultProgressInterval bounds how often snapshots reach the
// subscriber.
const DefaultProgressInterval = 2 * time.Second

// ProgressSnapshot is a read-only view of pipeline progress.
// ChunksPlayed is monotonically non-decreasing across snapshots.
type ProgressSnapshot struct {
	ChunksFetched      uint
	ChunksSynthesized  uint
	ChunksPlayed       uint
	ChunksFailed       uint
	Buffered           int
	TotalEstimate      uint // best-effort, 0 when unknown
	EstimatedRemaining time.Duration
	State              PlaybackState
}

// Event is a discrete pipeline notification delivered to the
// subscriber outside the snapshot rate limit.
type Event interface{ event() }

// ChunkFailedEvent reports a chunk skipped after a synthesis failure.
type ChunkFailedEvent struct {
	Index  uint
	Reason error
}

func (ChunkFailedEvent) event() {}

// StateChangedEvent reports a session state transition.
type StateChangedEvent struct {
	State PlaybackState
}

func (StateChangedEvent) event() {}

// ProgressTracker aggregates counts and timing from the feeder, the
// worker pool, and the controller. It is event-driven: components call
// it on every state-changing event, and it publishes snapshots to the
// subscriber at most once per interval. Terminal state changes always
// publish.
type ProgressTracker struct {
	mu         sync.Mutex
	snap       ProgressSnapshot
	buffered   func() int
	limiter    *rate.Limiter
	onProgress func(ProgressSnapshot)
	onEvent    func(Event)
}

// NewProgressTracker creates a tracker publishing to onProgress and
// onEvent, either of which may be nil. An interval of 0 or less uses
// DefaultProgressInterval.
func NewProgressTracker(interval time.Duration, onProgress func(ProgressSnapshot), onEvent func(Event)) *ProgressTracker {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &ProgressTracker{
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		onProgress: onProgress,
		onEvent:    onEvent,
	}
}

// SetBufferedFunc installs the live playback-buffer size query used
// when building snapshots.
func (t *ProgressTracker) SetBufferedFunc(fn func() int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buffered = fn
}

// ChunkFetched records a chunk emitted by the feeder.
func (t *ProgressTracker) ChunkFetched() {
	t.mu.Lock()
	t.snap.ChunksFetched++
	t.mu.Unlock()
	t.publish(false)
}

// SetTotalEstimate records the best-effort total chunk count. The
// estimate may grow as more source arrives.
func (t *ProgressTracker) SetTotalEstimate(n uint) {
	t.mu.Lock()
	if n > t.snap.TotalEstimate {
		t.snap.TotalEstimate = n
	}
	t.mu.Unlock()
}

// ChunkSynthesized records a successful synthesis and its estimated
// playback duration.
func (t *ProgressTracker) ChunkSynthesized(d time.Duration) {
	t.mu.Lock()
	t.snap.ChunksSynthesized++
	t.snap.EstimatedRemaining += d
	t.mu.Unlock()
	t.publish(false)
}

// ChunkPlayed records a chunk played to completion.
func (t *ProgressTracker) ChunkPlayed(d time.Duration) {
	t.mu.Lock()
	t.snap.ChunksPlayed++
	t.snap.EstimatedRemaining -= d
	if t.snap.EstimatedRemaining < 0 {
		t.snap.EstimatedRemaining = 0
	}
	t.mu.Unlock()
	t.publish(false)
}

// ChunkFailed records a skipped chunk and emits a ChunkFailedEvent.
func (t *ProgressTracker) ChunkFailed(index uint, reason error) {
	t.mu.Lock()
	t.snap.ChunksFailed++
	onEvent := t.onEvent
	t.mu.Unlock()

	if onEvent != nil {
		onEvent(ChunkFailedEvent{Index: index, Reason: reason})
	}
	t.publish(false)
}

// StateChanged records a session state transition and emits a
// StateChangedEvent. Terminal states bypass the snapshot rate limit.
func (t *ProgressTracker) StateChanged(s PlaybackState) {
	t.mu.Lock()
	t.snap.State = s
	onEvent := t.onEvent
	t.mu.Unlock()

	if onEvent != nil {
		onEvent(StateChangedEvent{State: s})
	}
	t.publish(s.Terminal())
}

// Snapshot returns the current progress.
func (t *ProgressTracker) Snapshot() ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.snap
	if t.buffered != nil {
		snap.Buffered = t.buffered()
	}
	return snap
}

func (t *ProgressTracker) publish(force bool) {
	t.mu.Lock()
	onProgress := t.onProgress
	t.mu.Unlock()

	if onProgress == nil {
		return
	}
	if !force && !t.limiter.Allow() {
		return
	}
	onProgress(t.Snapshot())
}
