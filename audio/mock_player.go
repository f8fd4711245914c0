package audio

import (
	"sync"
	"time"

	"github.com/dgnsrekt/readaloud/synth"
)

// MockPlayer is a scriptable in-memory Player for tests. Each artifact
// "plays" for a fixed duration on a timer; pause preserves the
// remaining time exactly, so pause/resume integrity can be asserted.
type MockPlayer struct {
	mu sync.Mutex

	playTime  time.Duration // Duration every artifact takes to play
	failPlays int           // Next N Play calls fail
	failErr   error

	done      chan struct{}
	timer     *time.Timer
	playing   bool
	paused    bool
	closed    bool
	startedAt time.Time
	remaining time.Duration
	err       error

	started   []*synth.Audio
	completed []*synth.Audio
	prepared  []*synth.Audio
	events    []string
}

var _ Player = (*MockPlayer)(nil)
var _ Preparer = (*MockPlayer)(nil)

// NewMockPlayer creates a mock player where every artifact plays for
// playTime (zero means 5ms, enough to observe ordering without slowing
// tests down).
func NewMockPlayer(playTime time.Duration) *MockPlayer {
	if playTime <= 0 {
		playTime = 5 * time.Millisecond
	}
	done := make(chan struct{})
	close(done)
	return &MockPlayer{playTime: playTime, done: done}
}

// FailNextPlays makes the next n Play calls return err.
func (p *MockPlayer) FailNextPlays(n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failPlays = n
	p.failErr = err
}

// Play implements Player.
func (p *MockPlayer) Play(a *synth.Audio) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPlayerClosed
	}
	if p.playing {
		return ErrAlreadyPlaying
	}
	if p.failPlays > 0 {
		p.failPlays--
		p.events = append(p.events, "play-error")
		return p.failErr
	}

	done := make(chan struct{})
	p.done = done
	p.playing = true
	p.paused = false
	p.err = nil
	p.started = append(p.started, a)
	p.events = append(p.events, "play")
	p.startedAt = time.Now()
	p.remaining = p.playTime
	p.timer = time.AfterFunc(p.playTime, func() { p.finish(done, a) })
	return nil
}

func (p *MockPlayer) finish(done chan struct{}, a *synth.Audio) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != done || !p.playing || p.paused {
		return
	}
	p.playing = false
	p.completed = append(p.completed, a)
	p.events = append(p.events, "finish")
	close(done)
}

// Pause implements Player.
func (p *MockPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return ErrNothingPlaying
	}
	if p.paused {
		return nil
	}
	p.paused = true
	p.timer.Stop()
	p.remaining -= time.Since(p.startedAt)
	if p.remaining < 0 {
		p.remaining = 0
	}
	p.events = append(p.events, "pause")
	return nil
}

// Resume implements Player.
func (p *MockPlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return ErrNothingPlaying
	}
	if !p.paused {
		return ErrNotPaused
	}
	p.paused = false
	p.startedAt = time.Now()
	p.events = append(p.events, "resume")

	done := p.done
	var last *synth.Audio
	if len(p.started) > 0 {
		last = p.started[len(p.started)-1]
	}
	p.timer = time.AfterFunc(p.remaining, func() { p.finish(done, last) })
	return nil
}

// Stop implements Player.
func (p *MockPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *MockPlayer) stopLocked() error {
	if !p.playing {
		return nil
	}
	p.timer.Stop()
	p.playing = false
	p.paused = false
	p.events = append(p.events, "stop")
	close(p.done)
	return nil
}

// Done implements Player.
func (p *MockPlayer) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Err implements Player.
func (p *MockPlayer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Prepare implements Preparer, recording the call.
func (p *MockPlayer) Prepare(a *synth.Audio) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prepared = append(p.prepared, a)
}

// Close implements Player.
func (p *MockPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.stopLocked()
}

// Started returns the artifacts whose playback began, in order.
func (p *MockPlayer) Started() []*synth.Audio {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*synth.Audio, len(p.started))
	copy(out, p.started)
	return out
}

// Completed returns the artifacts that played to their natural end.
func (p *MockPlayer) Completed() []*synth.Audio {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*synth.Audio, len(p.completed))
	copy(out, p.completed)
	return out
}

// Prepared returns the artifacts handed to Prepare.
func (p *MockPlayer) Prepared() []*synth.Audio {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*synth.Audio, len(p.prepared))
	copy(out, p.prepared)
	return out
}

// Events returns the ordered action log.
func (p *MockPlayer) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	copy(out, p.events)
	return out
}
