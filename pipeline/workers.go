package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/readaloud/synth"
)

// Worker pool defaults.
const (
	DefaultWorkers          = 3
	DefaultSynthesisTimeout = 30 * time.Second
)

// WorkerPool runs N synthesis workers. Each worker pulls chunks from
// the work queue, synthesizes them with a per-call timeout, and inserts
// the resulting artifact into the reorder buffer. Synthesis failures
// and timeouts become failure placeholders rather than retries; the
// pipeline favors forward progress over retry-until-success.
//
// Workers block before pulling a new chunk while the reorder buffer
// plus the playback buffer hold high-watermark many artifacts.
type WorkerPool struct {
	engine  synth.Engine
	queue   *WorkQueue
	reorder *ReorderBuffer
	buffer  *PlaybackBuffer
	tracker *ProgressTracker
	size    int
	timeout time.Duration
	logger  *log.Logger
}

// NewWorkerPool creates a pool of size workers with the given per-call
// synthesis timeout. Zero or negative values take the defaults.
func NewWorkerPool(engine synth.Engine, queue *WorkQueue, reorder *ReorderBuffer, buffer *PlaybackBuffer, tracker *ProgressTracker, size int, timeout time.Duration, logger *log.Logger) *WorkerPool {
	if size <= 0 {
		size = DefaultWorkers
	}
	if timeout <= 0 {
		timeout = DefaultSynthesisTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &WorkerPool{
		engine:  engine,
		queue:   queue,
		reorder: reorder,
		buffer:  buffer,
		tracker: tracker,
		size:    size,
		timeout: timeout,
		logger:  logger.With("component", "workers"),
	}
}

// Run starts the workers and blocks until the work queue is drained or
// ctx is cancelled.
func (p *WorkerPool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		id := i
		g.Go(func() error { return p.worker(ctx, id) })
	}
	return g.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) error {
	logger := p.logger.With("worker", id)
	for {
		if err := p.buffer.WaitBelowCombined(ctx, p.reorder.Pending); err != nil {
			if errors.Is(err, ErrBufferClosed) {
				return nil
			}
			return err
		}

		chunk, err := p.queue.Pop(ctx)
		if errors.Is(err, ErrQueueClosed) {
			logger.Debug("work queue drained")
			return nil
		}
		if err != nil {
			return err
		}

		art := p.synthesize(ctx, chunk, logger)
		if ctx.Err() != nil {
			// Cancellation mid-call; the abandoned result is not an
			// artifact.
			return ctx.Err()
		}
		if err := p.reorder.Insert(ctx, art); err != nil {
			if errors.Is(err, ErrBufferClosed) || errors.Is(err, ErrBufferDrained) {
				return nil
			}
			return err
		}
		if art.Status == StatusReady {
			p.tracker.ChunkSynthesized(art.Duration)
		}
	}
}

func (p *WorkerPool) synthesize(ctx context.Context, chunk TextChunk, logger *log.Logger) *AudioArtifact {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	a, err := p.engine.Synthesize(callCtx, chunk.Text)
	if err != nil {
		logger.Warn("synthesis failed",
			"chunk", chunk.Index,
			"engine", p.engine.Name(),
			"elapsed", time.Since(start),
			"err", err)
		return &AudioArtifact{
			Index:  chunk.Index,
			Status: StatusFailed,
			Err:    NewChunkError(KindSynthesis, chunk.Index, err),
		}
	}

	dur := a.Duration
	if dur <= 0 {
		dur = synth.EstimateDuration(chunk.Text, synth.DefaultWordsPerMinute)
	}
	logger.Debug("chunk synthesized",
		"chunk", chunk.Index,
		"bytes", len(a.Data),
		"elapsed", time.Since(start))
	return &AudioArtifact{
		Index:    chunk.Index,
		Audio:    a,
		Duration: dur,
		Status:   StatusReady,
	}
}
