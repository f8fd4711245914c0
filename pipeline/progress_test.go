package pipeline

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestProgressTrackerCounters(t *testing.T) {
	tr := NewProgressTracker(time.Hour, nil, nil)

	for i := 0; i < 4; i++ {
		tr.ChunkFetched()
	}
	tr.ChunkSynthesized(2 * time.Second)
	tr.ChunkSynthesized(3 * time.Second)
	tr.ChunkFailed(2, errors.New("timed out"))
	tr.ChunkPlayed(2 * time.Second)

	snap := tr.Snapshot()
	if snap.ChunksFetched != 4 {
		t.Errorf("ChunksFetched = %d, want 4", snap.ChunksFetched)
	}
	if snap.ChunksSynthesized != 2 {
		t.Errorf("ChunksSynthesized = %d, want 2", snap.ChunksSynthesized)
	}
	if snap.ChunksPlayed != 1 {
		t.Errorf("ChunksPlayed = %d, want 1", snap.ChunksPlayed)
	}
	if snap.ChunksFailed != 1 {
		t.Errorf("ChunksFailed = %d, want 1", snap.ChunksFailed)
	}
	if snap.EstimatedRemaining != 3*time.Second {
		t.Errorf("EstimatedRemaining = %v, want 3s", snap.EstimatedRemaining)
	}
}

func TestProgressTrackerRemainingNeverNegative(t *testing.T) {
	tr := NewProgressTracker(time.Hour, nil, nil)
	tr.ChunkSynthesized(time.Second)
	tr.ChunkPlayed(5 * time.Second)
	if got := tr.Snapshot().EstimatedRemaining; got != 0 {
		t.Errorf("EstimatedRemaining = %v, want 0", got)
	}
}

func TestProgressTrackerTotalEstimateOnlyGrows(t *testing.T) {
	tr := NewProgressTracker(time.Hour, nil, nil)
	tr.SetTotalEstimate(10)
	tr.SetTotalEstimate(7)
	tr.SetTotalEstimate(12)
	if got := tr.Snapshot().TotalEstimate; got != 12 {
		t.Errorf("TotalEstimate = %d, want 12", got)
	}
}

func TestProgressTrackerEvents(t *testing.T) {
	var mu sync.Mutex
	var events []Event
	tr := NewProgressTracker(time.Hour, nil, func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	reason := errors.New("no audio")
	tr.ChunkFailed(5, reason)
	tr.StateChanged(StatePlaying)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	fe, ok := events[0].(ChunkFailedEvent)
	if !ok || fe.Index != 5 || !errors.Is(fe.Reason, reason) {
		t.Errorf("events[0] = %#v, want ChunkFailedEvent{5, %v}", events[0], reason)
	}
	se, ok := events[1].(StateChangedEvent)
	if !ok || se.State != StatePlaying {
		t.Errorf("events[1] = %#v, want StateChangedEvent{playing}", events[1])
	}
}

func TestProgressTrackerRateLimitsSnapshots(t *testing.T) {
	var mu sync.Mutex
	published := 0
	tr := NewProgressTracker(time.Hour, func(ProgressSnapshot) {
		mu.Lock()
		published++
		mu.Unlock()
	}, nil)

	// The limiter allows one immediate publish, then blocks for an
	// hour; a terminal state change must still get through.
	for i := 0; i < 20; i++ {
		tr.ChunkFetched()
	}
	mu.Lock()
	afterBurst := published
	mu.Unlock()
	if afterBurst != 1 {
		t.Fatalf("published %d snapshots within the interval, want 1", afterBurst)
	}

	tr.StateChanged(StatePlaying) // non-terminal, rate limited
	tr.StateChanged(StateCompleted)

	mu.Lock()
	defer mu.Unlock()
	if published != 2 {
		t.Errorf("published = %d, want 2 (burst + forced terminal)", published)
	}
}

func TestProgressTrackerPlayedMonotonic(t *testing.T) {
	tr := NewProgressTracker(time.Hour, nil, nil)
	last := uint(0)
	for i := 0; i < 10; i++ {
		tr.ChunkPlayed(time.Second)
		got := tr.Snapshot().ChunksPlayed
		if got < last {
			t.Fatalf("ChunksPlayed decreased: %d -> %d", last, got)
		}
		last = got
	}
	if last != 10 {
		t.Errorf("ChunksPlayed = %d, want 10", last)
	}
}

func TestProgressTrackerBufferedQuery(t *testing.T) {
	tr := NewProgressTracker(time.Hour, nil, nil)
	size := 3
	tr.SetBufferedFunc(func() int { return size })
	if got := tr.Snapshot().Buffered; got != 3 {
		t.Errorf("Buffered = %d, want 3", got)
	}
	size = 1
	if got := tr.Snapshot().Buffered; got != 1 {
		t.Errorf("Buffered = %d, want 1", got)
	}
}

func TestStateMachineFeedsTracker(t *testing.T) {
	tr := NewProgressTracker(time.Hour, nil, nil)
	sm := NewStateMachine(tr.StateChanged)
	sm.Transition(StateFetching)
	sm.Transition(StateBuffering)
	if got := tr.Snapshot().State; got != StateBuffering {
		t.Errorf("snapshot state = %s, want buffering", got)
	}
}
