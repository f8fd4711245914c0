package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/dgnsrekt/readaloud/audio"
	"github.com/dgnsrekt/readaloud/feed"
	"github.com/dgnsrekt/readaloud/segment"
	"github.com/dgnsrekt/readaloud/synth/engines/mock"
)

// Five sentences sized so the 20..60 band yields one chunk per
// sentence. The fourth carries the marker used to script failures.
const fiveSentences = "The morning train left the station on time. " +
	"Passengers settled into their narrow seats. " +
	"Outside the windows the fields rolled past. " +
	"The conductor zzmarker checked every ticket. " +
	"Night fell before the train reached the coast."

func testChunker(t *testing.T) *segment.Chunker {
	t.Helper()
	c, err := segment.NewChunker(segment.Options{MinSize: 20, MaxSize: 60})
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	return c
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) failures() []ChunkFailedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []ChunkFailedEvent
	for _, e := range l.events {
		if fe, ok := e.(ChunkFailedEvent); ok {
			out = append(out, fe)
		}
	}
	return out
}

func waitSession(t *testing.T, sess *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	select {
	case <-sess.Done():
	case <-ctx.Done():
		t.Fatal("session never reached a terminal state")
	}
}

func TestOrchestratorPlaysSourceToCompletion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProgressInterval = time.Hour
	orch, err := NewOrchestrator(cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	engine := mock.New()
	player := audio.NewMockPlayer(5 * time.Millisecond)
	src := feed.NewStringSource(fiveSentences, "memory")

	sess, err := orch.Start(context.Background(), src, engine, player, testChunker(t))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.ID == "" || sess.SourceID != "memory" {
		t.Errorf("session identity = %q/%q", sess.ID, sess.SourceID)
	}

	waitSession(t, sess)
	if sess.State() != StateCompleted {
		t.Fatalf("state = %s, want completed (err: %v)", sess.State(), sess.Err())
	}
	if err := sess.Err(); err != nil {
		t.Errorf("Err = %v", err)
	}

	snap := sess.Progress()
	if snap.ChunksFetched != 5 {
		t.Errorf("ChunksFetched = %d, want 5", snap.ChunksFetched)
	}
	if snap.ChunksPlayed != 5 {
		t.Errorf("ChunksPlayed = %d, want 5", snap.ChunksPlayed)
	}
	if snap.ChunksFailed != 0 {
		t.Errorf("ChunksFailed = %d, want 0", snap.ChunksFailed)
	}
	if got := len(player.Completed()); got != 5 {
		t.Errorf("player completed %d chunks, want 5", got)
	}
	if engine.Calls() != 5 {
		t.Errorf("engine called %d times, want 5", engine.Calls())
	}
}

// A synthesis timeout on one chunk must not disturb the others: the
// failed chunk is skipped with a report and the session still
// completes.
func TestOrchestratorSkipsTimedOutChunk(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SynthesisTimeout = 50 * time.Millisecond
	cfg.ProgressInterval = time.Hour
	orch, err := NewOrchestrator(cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	var events eventLog
	orch.OnEvent(events.add)

	engine := mock.New(mock.HangOn("zzmarker"))
	player := audio.NewMockPlayer(5 * time.Millisecond)
	src := feed.NewStringSource(fiveSentences, "memory")

	sess, err := orch.Start(context.Background(), src, engine, player, testChunker(t))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitSession(t, sess)

	if sess.State() != StateCompleted {
		t.Fatalf("state = %s, want completed (err: %v)", sess.State(), sess.Err())
	}

	snap := sess.Progress()
	if snap.ChunksFetched != 5 || snap.ChunksPlayed != 4 || snap.ChunksFailed != 1 {
		t.Errorf("fetched/played/failed = %d/%d/%d, want 5/4/1",
			snap.ChunksFetched, snap.ChunksPlayed, snap.ChunksFailed)
	}
	if got := len(player.Completed()); got != 4 {
		t.Errorf("player completed %d chunks, want 4", got)
	}

	failures := events.failures()
	if len(failures) != 1 {
		t.Fatalf("got %d failure events, want 1", len(failures))
	}
	if failures[0].Index != 3 {
		t.Errorf("failed chunk index = %d, want 3", failures[0].Index)
	}
	if !errors.Is(failures[0].Reason, context.DeadlineExceeded) {
		t.Errorf("failure reason = %v, want deadline exceeded", failures[0].Reason)
	}
}

// A source whose only chunk fails synthesis produced zero audio; the
// session must fail rather than complete.
func TestOrchestratorFailsWhenNothingPlays(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProgressInterval = time.Hour
	orch, err := NewOrchestrator(cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	engine := mock.New(mock.FailOn("doomed", errors.New("no voice available")))
	player := audio.NewMockPlayer(5 * time.Millisecond)
	src := feed.NewStringSource("This single doomed sentence will never be heard.", "memory")

	sess, err := orch.Start(context.Background(), src, engine, player, testChunker(t))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitSession(t, sess)

	if sess.State() != StateFailed {
		t.Fatalf("state = %s, want failed", sess.State())
	}
	if !IsKind(sess.Err(), KindSynthesis) {
		t.Errorf("Err = %v, want synthesis kind", sess.Err())
	}
	if got := sess.Progress().ChunksPlayed; got != 0 {
		t.Errorf("ChunksPlayed = %d, want 0", got)
	}
}

func TestOrchestratorStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProgressInterval = time.Hour
	orch, err := NewOrchestrator(cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	player := audio.NewMockPlayer(time.Minute)
	src := feed.NewStringSource(fiveSentences, "memory")

	sess, err := orch.Start(context.Background(), src, mock.New(), player, testChunker(t))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitUntil(t, func() bool { return sess.State() == StatePlaying }, "session never started playing")
	sess.Stop()
	waitSession(t, sess)

	if sess.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", sess.State())
	}
	if err := sess.Err(); err != nil {
		t.Errorf("Err after stop = %v", err)
	}
}

func TestOrchestratorCancellation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProgressInterval = time.Hour
	orch, err := NewOrchestrator(cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	player := audio.NewMockPlayer(time.Minute)
	src := feed.NewStringSource(fiveSentences, "memory")

	sess, err := orch.Start(ctx, src, mock.New(), player, testChunker(t))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitUntil(t, func() bool { return sess.State() == StatePlaying }, "session never started playing")
	cancel()
	waitSession(t, sess)

	if sess.State() != StateStopped {
		t.Fatalf("state = %s, want stopped after cancellation", sess.State())
	}
}

// A source that fails before producing any chunk fails the session.
func TestOrchestratorFailsOnUnreadableSource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProgressInterval = time.Hour
	orch, err := NewOrchestrator(cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	readErr := errors.New("connection reset")
	src := feed.NewReaderSource(iotest.ErrReader(readErr), "broken")
	player := audio.NewMockPlayer(5 * time.Millisecond)

	sess, err := orch.Start(context.Background(), src, mock.New(), player, testChunker(t))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitSession(t, sess)

	if sess.State() != StateFailed {
		t.Fatalf("state = %s, want failed", sess.State())
	}
	if !IsKind(sess.Err(), KindFetch) {
		t.Errorf("Err = %v, want fetch kind", sess.Err())
	}
	if !errors.Is(sess.Err(), readErr) {
		t.Errorf("Err = %v, want wrapped %v", sess.Err(), readErr)
	}
}

// A source that fails after some chunks played completes with the
// truncated content instead of failing.
func TestOrchestratorCompletesTruncatedSource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FeedThreshold = 64
	cfg.ProgressInterval = time.Hour
	orch, err := NewOrchestrator(cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	r := io.MultiReader(strings.NewReader(fiveSentences), iotest.ErrReader(errors.New("connection reset")))
	src := feed.NewReaderSource(r, "flaky")
	player := audio.NewMockPlayer(5 * time.Millisecond)

	sess, err := orch.Start(context.Background(), src, mock.New(), player, testChunker(t))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitSession(t, sess)

	if sess.State() != StateCompleted {
		t.Fatalf("state = %s, want completed (err: %v)", sess.State(), sess.Err())
	}
	snap := sess.Progress()
	if snap.ChunksFetched == 0 {
		t.Error("no chunks fetched before the read error")
	}
	if snap.ChunksPlayed != snap.ChunksFetched-snap.ChunksFailed {
		t.Errorf("played %d of %d fetched", snap.ChunksPlayed, snap.ChunksFetched)
	}
	if got := len(player.Completed()); uint(got) != snap.ChunksPlayed {
		t.Errorf("player completed %d, snapshot says %d", got, snap.ChunksPlayed)
	}
}

func TestOrchestratorValidatesArguments(t *testing.T) {
	orch, err := NewOrchestrator(DefaultConfig(), quietLogger())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	player := audio.NewMockPlayer(0)
	src := feed.NewStringSource("hello", "memory")

	if _, err := orch.Start(context.Background(), nil, mock.New(), player, nil); err == nil {
		t.Error("nil source accepted")
	}
	if _, err := orch.Start(context.Background(), src, nil, player, nil); err == nil {
		t.Error("nil engine accepted")
	}
	if _, err := orch.Start(context.Background(), src, mock.New(), nil, nil); err == nil {
		t.Error("nil player accepted")
	}
}
