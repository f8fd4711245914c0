package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgnsrekt/readaloud/audio"
	"github.com/dgnsrekt/readaloud/synth"
)

func readyArtifact(index uint) *AudioArtifact {
	return &AudioArtifact{
		Index: index,
		Audio: &synth.Audio{
			Data:       make([]byte, 32),
			Format:     synth.FormatPCM16,
			SampleRate: 22050,
			Channels:   1,
		},
		Duration: 100 * time.Millisecond,
		Status:   StatusReady,
	}
}

type controllerHarness struct {
	ctrl    *Controller
	player  *audio.MockPlayer
	sm      *StateMachine
	tracker *ProgressTracker
	buffer  *PlaybackBuffer
	events  chan Event
	result  chan error
}

// startController fills the buffer with the artifacts, marks it
// finished, and runs the controller loop in the background.
func startController(t *testing.T, ctx context.Context, playTime time.Duration, arts ...*AudioArtifact) *controllerHarness {
	t.Helper()

	h := &controllerHarness{
		player: audio.NewMockPlayer(playTime),
		buffer: newTestBuffer(t, len(arts)+1, 1, 2*(len(arts)+1)),
		events: make(chan Event, 32),
		result: make(chan error, 1),
	}
	h.tracker = NewProgressTracker(time.Hour, nil, func(e Event) {
		select {
		case h.events <- e:
		default:
		}
	})
	h.sm = NewStateMachine(h.tracker.StateChanged)
	h.sm.Transition(StateFetching)
	h.ctrl = NewController(h.buffer, h.player, h.sm, h.tracker, quietLogger())

	for _, a := range arts {
		if err := h.buffer.Enqueue(ctx, a); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	h.buffer.Finish()

	go func() { h.result <- h.ctrl.Run(ctx) }()
	return h
}

func (h *controllerHarness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.result:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not finish")
		return nil
	}
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestControllerPlaysInOrder(t *testing.T) {
	ctx := context.Background()
	arts := []*AudioArtifact{readyArtifact(0), readyArtifact(1), readyArtifact(2)}
	h := startController(t, ctx, 5*time.Millisecond, arts...)

	if err := h.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	completed := h.player.Completed()
	if len(completed) != 3 {
		t.Fatalf("completed %d artifacts, want 3", len(completed))
	}
	for i, a := range completed {
		if a != arts[i].Audio {
			t.Errorf("playback position %d holds the wrong artifact", i)
		}
	}
	if got := h.tracker.Snapshot().ChunksPlayed; got != 3 {
		t.Errorf("ChunksPlayed = %d, want 3", got)
	}
}

func TestControllerSkipsFailedWithEvent(t *testing.T) {
	ctx := context.Background()
	reason := NewChunkError(KindSynthesis, 1, errors.New("timed out"))
	arts := []*AudioArtifact{
		readyArtifact(0),
		{Index: 1, Status: StatusFailed, Err: reason},
		readyArtifact(2),
	}
	h := startController(t, ctx, 5*time.Millisecond, arts...)

	if err := h.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := len(h.player.Completed()); got != 2 {
		t.Errorf("completed %d artifacts, want 2", got)
	}

	var failedEvents []ChunkFailedEvent
	close(h.events)
	for e := range h.events {
		if fe, ok := e.(ChunkFailedEvent); ok {
			failedEvents = append(failedEvents, fe)
		}
	}
	if len(failedEvents) != 1 || failedEvents[0].Index != 1 {
		t.Fatalf("failed events = %v, want exactly one for index 1", failedEvents)
	}
	if !errors.Is(failedEvents[0].Reason, reason) {
		t.Errorf("event reason = %v, want %v", failedEvents[0].Reason, reason)
	}

	snap := h.tracker.Snapshot()
	if snap.ChunksPlayed != 2 || snap.ChunksFailed != 1 {
		t.Errorf("played=%d failed=%d, want 2/1", snap.ChunksPlayed, snap.ChunksFailed)
	}
}

func TestControllerPauseResumePlaysEveryChunkOnce(t *testing.T) {
	ctx := context.Background()
	arts := []*AudioArtifact{readyArtifact(0), readyArtifact(1), readyArtifact(2)}
	h := startController(t, ctx, 80*time.Millisecond, arts...)

	waitUntil(t, func() bool { return len(h.player.Started()) >= 1 }, "playback never started")
	h.ctrl.Pause()
	waitUntil(t, func() bool { return h.sm.Current() == StatePaused }, "never paused")

	// Nothing completes while paused.
	before := len(h.player.Completed())
	time.Sleep(150 * time.Millisecond)
	if got := len(h.player.Completed()); got != before {
		t.Errorf("completed %d chunks while paused", got-before)
	}

	h.ctrl.Resume()
	if err := h.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Every chunk started exactly once and completed exactly once: no
	// replayed and no skipped audio.
	if got := len(h.player.Started()); got != 3 {
		t.Errorf("started %d playbacks, want 3", got)
	}
	completed := h.player.Completed()
	if len(completed) != 3 {
		t.Fatalf("completed %d chunks, want 3", len(completed))
	}
	for i, a := range completed {
		if a != arts[i].Audio {
			t.Errorf("playback position %d out of order after pause/resume", i)
		}
	}
}

func TestControllerSkipAdvances(t *testing.T) {
	ctx := context.Background()
	arts := []*AudioArtifact{readyArtifact(0), readyArtifact(1)}
	h := startController(t, ctx, time.Minute, arts...)

	waitUntil(t, func() bool { return len(h.player.Started()) == 1 }, "chunk 0 never started")
	h.ctrl.Skip()
	waitUntil(t, func() bool { return len(h.player.Started()) == 2 }, "chunk 1 never started after skip")
	h.ctrl.Skip()

	if err := h.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := len(h.player.Completed()); got != 0 {
		t.Errorf("skipped chunks counted as completed: %d", got)
	}
	if got := h.tracker.Snapshot().ChunksPlayed; got != 0 {
		t.Errorf("ChunksPlayed = %d after skipping everything", got)
	}
}

func TestControllerStop(t *testing.T) {
	ctx := context.Background()
	h := startController(t, ctx, time.Minute, readyArtifact(0), readyArtifact(1))

	waitUntil(t, func() bool { return len(h.player.Started()) == 1 }, "playback never started")
	h.ctrl.Stop()

	if err := h.wait(t); !errors.Is(err, errStopRequested) {
		t.Fatalf("Run = %v, want stop request", err)
	}
}

func TestControllerRetriesPlaybackOnce(t *testing.T) {
	ctx := context.Background()
	arts := []*AudioArtifact{readyArtifact(0)}

	h := &controllerHarness{
		player: audio.NewMockPlayer(5 * time.Millisecond),
		buffer: newTestBuffer(t, 2, 1, 4),
		result: make(chan error, 1),
	}
	h.tracker = NewProgressTracker(time.Hour, nil, nil)
	h.sm = NewStateMachine(nil)
	h.sm.Transition(StateFetching)
	h.ctrl = NewController(h.buffer, h.player, h.sm, h.tracker, quietLogger())

	h.player.FailNextPlays(1, errors.New("device busy"))
	h.buffer.Enqueue(ctx, arts[0])
	h.buffer.Finish()

	go func() { h.result <- h.ctrl.Run(ctx) }()
	if err := h.wait(t); err != nil {
		t.Fatalf("Run after transient failure: %v", err)
	}
	if got := len(h.player.Completed()); got != 1 {
		t.Errorf("completed %d chunks, want 1", got)
	}
}

func TestControllerFailsOnPersistentPlaybackError(t *testing.T) {
	ctx := context.Background()
	deviceErr := errors.New("device gone")

	h := &controllerHarness{
		player: audio.NewMockPlayer(5 * time.Millisecond),
		buffer: newTestBuffer(t, 2, 1, 4),
		result: make(chan error, 1),
	}
	h.tracker = NewProgressTracker(time.Hour, nil, nil)
	h.sm = NewStateMachine(nil)
	h.sm.Transition(StateFetching)
	h.ctrl = NewController(h.buffer, h.player, h.sm, h.tracker, quietLogger())

	h.player.FailNextPlays(2, deviceErr)
	h.buffer.Enqueue(ctx, readyArtifact(0))
	h.buffer.Finish()

	go func() { h.result <- h.ctrl.Run(ctx) }()
	err := h.wait(t)
	if !errors.Is(err, deviceErr) {
		t.Fatalf("Run = %v, want wrapped %v", err, deviceErr)
	}
	if !IsKind(err, KindPlayback) {
		t.Errorf("Run error = %v, want playback kind", err)
	}
}

func TestControllerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := startController(t, ctx, time.Minute, readyArtifact(0))

	waitUntil(t, func() bool { return len(h.player.Started()) == 1 }, "playback never started")
	cancel()

	if err := h.wait(t); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}
