// Package audio provides playback devices for synthesized audio
// artifacts.
package audio

import (
	"errors"

	"github.com/dgnsrekt/readaloud/synth"
)

// Common player errors.
var (
	ErrAlreadyPlaying = errors.New("audio: playback already in progress")
	ErrNothingPlaying = errors.New("audio: nothing is playing")
	ErrNotPaused      = errors.New("audio: playback is not paused")
	ErrPlayerClosed   = errors.New("audio: player is closed")
	ErrFormatMismatch = errors.New("audio: artifact format does not match device")
	ErrDecodeFailed   = errors.New("audio: decoding artifact failed")
	ErrDeviceUnusable = errors.New("audio: playback device unusable")
)

// Player is a playback device for one artifact at a time. Play starts
// playback without blocking; Done reports completion of the current
// artifact. Pause is position-preserving where the device supports it.
type Player interface {
	// Play begins playback of a. It fails with ErrAlreadyPlaying when
	// an artifact is still active.
	Play(a *synth.Audio) error

	// Pause suspends the current playback at its position.
	Pause() error

	// Resume continues paused playback.
	Resume() error

	// Stop abandons the current playback; its Done channel closes.
	Stop() error

	// Done returns a channel closed when the current playback
	// finishes or is stopped. Before any Play it returns a closed
	// channel.
	Done() <-chan struct{}

	// Err reports the failure of the last finished playback, if any.
	Err() error

	// Close releases the device. Any active playback is stopped.
	Close() error
}

// Preparer is implemented by players that can pre-open the next
// artifact while the current one is still playing, minimizing the gap
// between consecutive chunks.
type Preparer interface {
	Prepare(a *synth.Audio)
}
