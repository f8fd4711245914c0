//go:build !nocgo
// +build !nocgo

package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/readaloud/synth"
)

// otoPollInterval is how often the watcher checks for playback end.
const otoPollInterval = 10 * time.Millisecond

// OtoPlayer plays artifacts through the system audio device via oto.
// The device is opened once at a fixed sample rate; artifacts must
// match it (no resampling). Mono PCM is expanded to the stereo device
// layout, MP3 is decoded with go-mp3.
type OtoPlayer struct {
	ctx        *oto.Context
	sampleRate int
	logger     *log.Logger

	mu       sync.Mutex
	cur      *oto.Player
	done     chan struct{}
	playing  bool
	paused   bool
	closed   bool
	err      error
	prepared map[*synth.Audio][]byte
}

var _ Player = (*OtoPlayer)(nil)
var _ Preparer = (*OtoPlayer)(nil)

// NewOtoPlayer opens the audio device at the given sample rate.
func NewOtoPlayer(sampleRate int) (*OtoPlayer, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnusable, err)
	}
	<-ready

	done := make(chan struct{})
	close(done)
	return &OtoPlayer{
		ctx:        ctx,
		sampleRate: sampleRate,
		logger:     log.Default().With("component", "player"),
		done:       done,
		prepared:   make(map[*synth.Audio][]byte),
	}, nil
}

// Play implements Player.
func (p *OtoPlayer) Play(a *synth.Audio) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPlayerClosed
	}
	if p.playing {
		return ErrAlreadyPlaying
	}

	data, ok := p.prepared[a]
	if !ok {
		var err error
		data, err = decodeToDevicePCM(a, p.sampleRate)
		if err != nil {
			return err
		}
	}
	delete(p.prepared, a)

	p.cur = p.ctx.NewPlayer(bytes.NewReader(data))
	p.done = make(chan struct{})
	p.playing = true
	p.paused = false
	p.err = nil
	p.cur.Play()

	go p.watch(p.cur, p.done)
	return nil
}

// watch polls the oto player until the artifact drains, then closes
// done. A paused player reports not-playing, so the paused flag gates
// the end-of-playback check.
func (p *OtoPlayer) watch(player *oto.Player, done chan struct{}) {
	ticker := time.NewTicker(otoPollInterval)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		if p.done != done {
			// Superseded by Stop or a new Play.
			p.mu.Unlock()
			return
		}
		if p.paused {
			p.mu.Unlock()
			continue
		}
		if !player.IsPlaying() {
			p.err = player.Err()
			if closeErr := player.Close(); closeErr != nil && p.err == nil {
				p.err = closeErr
			}
			p.playing = false
			p.cur = nil
			close(done)
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
}

// Pause implements Player. oto pauses in place, so resuming continues
// from the exact position.
func (p *OtoPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return ErrNothingPlaying
	}
	if p.paused {
		return nil
	}
	p.paused = true
	p.cur.Pause()
	return nil
}

// Resume implements Player.
func (p *OtoPlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return ErrNothingPlaying
	}
	if !p.paused {
		return ErrNotPaused
	}
	p.paused = false
	p.cur.Play()
	return nil
}

// Stop implements Player.
func (p *OtoPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *OtoPlayer) stopLocked() error {
	if !p.playing {
		return nil
	}
	err := p.cur.Close()
	p.cur = nil
	p.playing = false
	p.paused = false
	close(p.done)
	return err
}

// Done implements Player.
func (p *OtoPlayer) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Err implements Player.
func (p *OtoPlayer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Prepare implements Preparer: the next artifact is decoded while the
// current one plays, so the follow-up Play only hands bytes to the
// device.
func (p *OtoPlayer) Prepare(a *synth.Audio) {
	data, err := decodeToDevicePCM(a, p.sampleRate)
	if err != nil {
		p.logger.Debug("prepare failed, will decode at play time", "error", err)
		return
	}
	p.mu.Lock()
	p.prepared = map[*synth.Audio][]byte{a: data}
	p.mu.Unlock()
}

// Close implements Player.
func (p *OtoPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.stopLocked()
}
