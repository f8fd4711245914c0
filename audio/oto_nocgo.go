//go:build nocgo
// +build nocgo

package audio

import (
	"fmt"

	"github.com/dgnsrekt/readaloud/synth"
)

// Stub implementation for static analysis and builds without cgo audio
// headers.

// OtoPlayer stub for nocgo builds.
type OtoPlayer struct{}

var _ Player = (*OtoPlayer)(nil)
var _ Preparer = (*OtoPlayer)(nil)

// NewOtoPlayer always fails: no audio device in nocgo builds.
func NewOtoPlayer(sampleRate int) (*OtoPlayer, error) {
	return nil, fmt.Errorf("%w: audio not available in nocgo build", ErrDeviceUnusable)
}

// Play implements Player.
func (p *OtoPlayer) Play(*synth.Audio) error { return ErrDeviceUnusable }

// Pause implements Player.
func (p *OtoPlayer) Pause() error { return ErrNothingPlaying }

// Resume implements Player.
func (p *OtoPlayer) Resume() error { return ErrNothingPlaying }

// Stop implements Player.
func (p *OtoPlayer) Stop() error { return nil }

// Done implements Player.
func (p *OtoPlayer) Done() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

// Err implements Player.
func (p *OtoPlayer) Err() error { return nil }

// Prepare implements Preparer.
func (p *OtoPlayer) Prepare(*synth.Audio) {}

// Close implements Player.
func (p *OtoPlayer) Close() error { return nil }
