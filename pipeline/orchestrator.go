package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/readaloud/audio"
	"github.com/dgnsrekt/readaloud/feed"
	"github.com/dgnsrekt/readaloud/segment"
	"github.com/dgnsrekt/readaloud/synth"
)

// Orchestrator wires and supervises streaming sessions: one feeder, N
// synthesis workers, one controller, and a progress publisher per
// session, joined by the work queue, reorder buffer, and playback
// buffer. A single cancellation signal reaches every blocking point.
type Orchestrator struct {
	cfg        Config
	logger     *log.Logger
	onProgress func(ProgressSnapshot)
	onEvent    func(Event)
}

// NewOrchestrator creates an orchestrator with the given tuning. A nil
// logger uses the default.
func NewOrchestrator(cfg Config, logger *log.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{cfg: cfg, logger: logger}, nil
}

// OnProgress installs the snapshot subscriber. Must be called before
// Start.
func (o *Orchestrator) OnProgress(fn func(ProgressSnapshot)) { o.onProgress = fn }

// OnEvent installs the discrete-event subscriber. Must be called
// before Start.
func (o *Orchestrator) OnEvent(fn func(Event)) { o.onEvent = fn }

// Session is one streaming invocation. It is created by Start and
// reaches exactly one terminal state: StateCompleted, StateStopped, or
// StateFailed.
type Session struct {
	ID        string
	SourceID  string
	StartedAt time.Time

	sm      *StateMachine
	tracker *ProgressTracker
	ctrl    *Controller
	cancel  context.CancelFunc

	stopped atomic.Bool
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// Start wires a session over the given source, engine, and player and
// begins streaming. A nil chunker uses the default segmentation
// options. The caller retains ownership of the player.
func (o *Orchestrator) Start(ctx context.Context, src feed.Source, engine synth.Engine, player audio.Player, chunker *segment.Chunker) (*Session, error) {
	if src == nil {
		return nil, errors.New("pipeline: source is required")
	}
	if engine == nil {
		return nil, errors.New("pipeline: synthesis engine is required")
	}
	if player == nil {
		return nil, errors.New("pipeline: player is required")
	}
	if chunker == nil {
		var err error
		chunker, err = segment.NewChunker(segment.DefaultOptions())
		if err != nil {
			return nil, NewError(KindSegmentation, err)
		}
	}

	buffer, err := NewPlaybackBuffer(o.cfg.BufferCapacity, o.cfg.LowWatermark, o.cfg.HighWatermark)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)

	tracker := NewProgressTracker(o.cfg.ProgressInterval, o.onProgress, o.onEvent)
	tracker.SetBufferedFunc(buffer.Size)
	sm := NewStateMachine(tracker.StateChanged)
	queue := NewWorkQueue(o.cfg.QueueSize)
	reorder := NewReorderBuffer(buffer)
	pool := NewWorkerPool(engine, queue, reorder, buffer, tracker, o.cfg.Workers, o.cfg.SynthesisTimeout, o.logger)
	feeder := feed.NewFeeder(src, chunker, o.cfg.FeedThreshold)
	ctrl := NewController(buffer, player, sm, tracker, o.logger)

	sess := &Session{
		ID:        uuid.NewString(),
		SourceID:  src.SourceID(),
		StartedAt: time.Now(),
		sm:        sm,
		tracker:   tracker,
		ctrl:      ctrl,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	sm.Transition(StateFetching)
	o.logger.Info("session started",
		"session", sess.ID,
		"source", sess.SourceID,
		"engine", engine.Name(),
		"workers", o.cfg.Workers)

	go o.run(ctx, sess, feeder, queue, pool, buffer, tracker, ctrl)
	return sess, nil
}

// run supervises one session to its terminal state.
func (o *Orchestrator) run(ctx context.Context, sess *Session, feeder *feed.Feeder, queue *WorkQueue, pool *WorkerPool, buffer *PlaybackBuffer, tracker *ProgressTracker, ctrl *Controller) {
	defer close(sess.done)
	defer sess.cancel()
	defer buffer.Close()

	var (
		fetchErr error
		ctrlErr  error
	)

	g, gctx := errgroup.WithContext(ctx)

	// The buffer's condition waits do not observe contexts; closing it
	// on cancellation wakes every waiter. gctx is always cancelled once
	// the group finishes, so this goroutine cannot leak.
	go func() {
		<-gctx.Done()
		buffer.Close()
	}()

	// Feeder. A source failure does not tear the pipeline down: chunks
	// already emitted continue downstream, and the terminal state is
	// decided from overall progress.
	g.Go(func() error {
		defer queue.Close()
		emit := func(ctx context.Context, c feed.Chunk) error {
			chunk := TextChunk{Index: c.Index, Text: c.Text, CharCount: c.CharCount}
			if err := queue.Push(ctx, chunk); err != nil {
				return err
			}
			tracker.ChunkFetched()
			if est, ok := feeder.TotalEstimate(); ok {
				tracker.SetTotalEstimate(est)
			}
			return nil
		}
		if err := feeder.Run(gctx, emit); err != nil && gctx.Err() == nil {
			o.logger.Error("content fetch failed", "session", sess.ID, "err", err)
			fetchErr = NewError(KindFetch, err)
		}
		return nil
	})

	// Workers. Once the queue drains the buffer is marked finished so
	// the controller can observe the drain.
	g.Go(func() error {
		err := pool.Run(gctx)
		buffer.Finish()
		if err != nil && gctx.Err() != nil {
			return nil
		}
		return err
	})

	// Controller. A real playback failure cancels the siblings.
	g.Go(func() error {
		ctrlErr = ctrl.Run(gctx)
		if ctrlErr != nil && !errors.Is(ctrlErr, errStopRequested) && gctx.Err() == nil {
			return ctrlErr
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		o.logger.Error("pipeline error", "session", sess.ID, "err", err)
	}

	snap := tracker.Snapshot()
	final, sessErr := o.finalState(ctx, sess, snap, fetchErr, ctrlErr)

	if fetchErr != nil && final == StateCompleted {
		o.logger.Warn("source truncated, played what was fetched",
			"session", sess.ID,
			"fetched", snap.ChunksFetched,
			"err", fetchErr)
	}

	sess.setErr(sessErr)
	sess.sm.Transition(final)
	o.logger.Info("session finished",
		"session", sess.ID,
		"state", final,
		"played", snap.ChunksPlayed,
		"failed", snap.ChunksFailed,
		"elapsed", time.Since(sess.StartedAt))
}

// finalState aggregates the terminal state: Completed when the source
// was exhausted and the buffer drained, Stopped on user stop or
// cancellation, Failed when no forward progress was possible.
func (o *Orchestrator) finalState(ctx context.Context, sess *Session, snap ProgressSnapshot, fetchErr, ctrlErr error) (PlaybackState, error) {
	switch {
	case sess.stopped.Load() || errors.Is(ctrlErr, errStopRequested):
		return StateStopped, nil

	case ctrlErr != nil && !errors.Is(ctrlErr, context.Canceled):
		return StateFailed, ctrlErr

	case ctx.Err() != nil:
		return StateStopped, nil

	case fetchErr != nil && snap.ChunksFetched == 0:
		return StateFailed, fetchErr

	case snap.ChunksFetched > 0 && snap.ChunksPlayed == 0 && snap.ChunksFailed == snap.ChunksFetched:
		return StateFailed, NewError(KindSynthesis, errors.New("every chunk failed synthesis"))

	default:
		return StateCompleted, nil
	}
}

// Pause suspends playback at its current position.
func (s *Session) Pause() { s.ctrl.Pause() }

// Resume continues paused playback.
func (s *Session) Resume() { s.ctrl.Resume() }

// Skip discards the current artifact and advances to the next.
func (s *Session) Skip() { s.ctrl.Skip() }

// Stop ends the session. In-flight synthesis calls are abandoned and
// buffered artifacts are released.
func (s *Session) Stop() {
	s.stopped.Store(true)
	s.ctrl.Stop()
	s.cancel()
}

// State returns the current session state.
func (s *Session) State() PlaybackState { return s.sm.Current() }

// Progress returns the current progress snapshot.
func (s *Session) Progress() ProgressSnapshot { return s.tracker.Snapshot() }

// Done returns a channel closed when the session reaches a terminal
// state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session is terminal or ctx is cancelled and
// returns the session error, if any.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the error that failed the session, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
