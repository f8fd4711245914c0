package pipeline

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readaloud/audio"
)

// Controller is the single playback consumer. It dequeues artifacts in
// index order, plays each to completion, and services
// pause/resume/stop/skip commands. Failure placeholders are skipped
// with a ChunkFailedEvent; a playback error is retried once before
// failing the session.
type Controller struct {
	buffer  *PlaybackBuffer
	player  audio.Player
	sm      *StateMachine
	tracker *ProgressTracker
	logger  *log.Logger

	pauseCh  chan struct{}
	resumeCh chan struct{}
	stopCh   chan struct{}
	skipCh   chan struct{}
}

// NewController creates a controller consuming from buffer and playing
// through player.
func NewController(buffer *PlaybackBuffer, player audio.Player, sm *StateMachine, tracker *ProgressTracker, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		buffer:   buffer,
		player:   player,
		sm:       sm,
		tracker:  tracker,
		logger:   logger.With("component", "controller"),
		pauseCh:  make(chan struct{}, 1),
		resumeCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}, 1),
		skipCh:   make(chan struct{}, 1),
	}
}

// Pause requests that the current playback be suspended.
func (c *Controller) Pause() {
	select {
	case c.pauseCh <- struct{}{}:
	default:
	}
}

// Resume requests that paused playback continue.
func (c *Controller) Resume() {
	select {
	case c.resumeCh <- struct{}{}:
	default:
	}
}

// Stop requests that playback end. The session transitions to
// StateStopped once the loop observes the command.
func (c *Controller) Stop() {
	select {
	case c.stopCh <- struct{}{}:
	default:
	}
}

// Skip requests that the current artifact be discarded, advancing to
// the next.
func (c *Controller) Skip() {
	select {
	case c.skipCh <- struct{}{}:
	default:
	}
}

// Run consumes the playback buffer until it drains, a stop command
// arrives, or ctx is cancelled. It returns nil on a natural drain and
// errStopRequested on stop; any other error fails the session.
func (c *Controller) Run(ctx context.Context) error {
	// Prebuffer to the low watermark before the first chunk so early
	// playback does not immediately underrun.
	c.sm.Transition(StateBuffering)
	if err := c.buffer.WaitAtLeast(ctx, c.buffer.LowWatermark()); err != nil {
		return c.mapWaitError(err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return errStopRequested
		default:
		}

		if c.buffer.Size() == 0 {
			c.sm.Transition(StateBuffering)
		}
		art, err := c.buffer.Dequeue(ctx)
		if err != nil {
			return c.mapWaitError(err)
		}

		if art.Failed() {
			c.logger.Warn("skipping failed chunk", "chunk", art.Index, "err", art.Err)
			c.tracker.ChunkFailed(art.Index, art.Err)
			continue
		}

		if err := c.play(ctx, art); err != nil {
			return err
		}
	}
}

// mapWaitError turns buffer shutdown errors into loop results: a drain
// is natural completion, a close means the session is being torn down
// elsewhere.
func (c *Controller) mapWaitError(err error) error {
	switch err {
	case ErrBufferDrained:
		c.logger.Debug("playback buffer drained")
		return nil
	case ErrBufferClosed:
		return nil
	default:
		return err
	}
}

// play runs one artifact to completion, servicing commands. A skip
// returns nil so the loop advances; a played chunk is counted exactly
// once, on its natural end.
func (c *Controller) play(ctx context.Context, art *AudioArtifact) error {
	c.sm.Transition(StatePlaying)

	if err := c.startPlayback(art); err != nil {
		return err
	}
	c.prepareNext()

	retried := false
	for {
		select {
		case <-ctx.Done():
			c.player.Stop()
			return ctx.Err()

		case <-c.stopCh:
			c.player.Stop()
			return errStopRequested

		case <-c.skipCh:
			c.logger.Debug("skipping chunk", "chunk", art.Index)
			c.player.Stop()
			return nil

		case <-c.pauseCh:
			if err := c.player.Pause(); err != nil {
				if errors.Is(err, audio.ErrNothingPlaying) {
					// The chunk finished in the same instant; apply the
					// pause to the next one.
					c.Pause()
					continue
				}
				c.logger.Warn("pause failed", "chunk", art.Index, "err", err)
				continue
			}
			c.sm.Transition(StatePaused)
			skipped, err := c.waitResume(ctx, art)
			if err != nil {
				return err
			}
			if skipped {
				return nil
			}

		case <-c.player.Done():
			perr := c.player.Err()
			if perr == nil {
				c.tracker.ChunkPlayed(art.Duration)
				return nil
			}
			if retried {
				return NewChunkError(KindPlayback, art.Index, perr)
			}
			// One retry for transient device failures.
			c.logger.Warn("playback failed, retrying chunk", "chunk", art.Index, "err", perr)
			retried = true
			if err := c.player.Play(art.Audio); err != nil {
				return NewChunkError(KindPlayback, art.Index, err)
			}
		}
	}
}

// startPlayback begins playback with a single retry on failure.
func (c *Controller) startPlayback(art *AudioArtifact) error {
	err := c.player.Play(art.Audio)
	if err == nil {
		return nil
	}
	c.logger.Warn("playback start failed, retrying", "chunk", art.Index, "err", err)
	if err := c.player.Play(art.Audio); err != nil {
		return NewChunkError(KindPlayback, art.Index, err)
	}
	return nil
}

// prepareNext pre-opens the next ready artifact while the current one
// plays, minimizing the gap between chunks.
func (c *Controller) prepareNext() {
	prep, ok := c.player.(audio.Preparer)
	if !ok {
		return
	}
	if next, ok := c.buffer.Peek(); ok && next.Status == StatusReady {
		prep.Prepare(next.Audio)
	}
}

// waitResume blocks in the paused state until resume, skip, stop, or
// cancellation. It reports whether the paused artifact was skipped.
func (c *Controller) waitResume(ctx context.Context, art *AudioArtifact) (skipped bool, err error) {
	for {
		select {
		case <-ctx.Done():
			c.player.Stop()
			return false, ctx.Err()

		case <-c.stopCh:
			c.player.Stop()
			return false, errStopRequested

		case <-c.skipCh:
			c.logger.Debug("skipping paused chunk", "chunk", art.Index)
			c.player.Stop()
			return true, nil

		case <-c.resumeCh:
			if err := c.player.Resume(); err != nil {
				return false, NewChunkError(KindPlayback, art.Index, err)
			}
			c.sm.Transition(StatePlaying)
			return false, nil

		case <-c.pauseCh:
			// Already paused.
		}
	}
}
