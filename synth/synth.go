// Package synth defines the speech synthesis capability consumed by the
// streaming pipeline, along with the audio artifact type engines produce.
package synth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

// Common engine errors.
var (
	ErrEngineNotAvailable = errors.New("synthesis engine is not available")
	ErrEmptyText          = errors.New("no text to synthesize")
	ErrGenerationFailed   = errors.New("audio generation failed")
)

// Format identifies the encoding of generated audio data.
type Format int

const (
	// FormatPCM16 is 16-bit little-endian PCM.
	FormatPCM16 Format = iota
	// FormatMP3 is MP3 compressed audio.
	FormatMP3
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatPCM16:
		return "pcm16"
	case FormatMP3:
		return "mp3"
	default:
		return "unknown"
	}
}

// Audio is a generated audio artifact. Ownership transfers with the
// value; holders must not mutate Data after handing it off.
type Audio struct {
	Data       []byte
	Format     Format
	SampleRate int
	Channels   int
	Duration   time.Duration // Estimate when the engine cannot measure
}

// Engine converts text to audio. Implementations may be local
// subprocesses or remote APIs; the pipeline treats them uniformly and
// enforces its own per-call timeout through ctx.
type Engine interface {
	// Name identifies the engine in logs and progress events.
	Name() string

	// Synthesize converts text to a single audio artifact. It must
	// honor ctx cancellation and deadline.
	Synthesize(ctx context.Context, text string) (*Audio, error)
}

// DefaultWordsPerMinute is the speaking rate assumed when estimating
// durations.
const DefaultWordsPerMinute = 150

var numberRun = regexp.MustCompile(`\d+`)

// EstimateDuration estimates speaking time for text at the given rate,
// slowing down for numbers and long words. A wpm of 0 uses the default.
func EstimateDuration(text string, wpm int) time.Duration {
	if wpm <= 0 {
		wpm = DefaultWordsPerMinute
	}
	words := strings.Fields(text)
	n := len(words)
	if n == 0 {
		n = 1
	}

	complexity := float64(len(numberRun.FindAllString(text, -1))) * 0.02
	long := 0
	for _, w := range words {
		if len(w) > 10 {
			long++
		}
	}
	complexity += float64(long) / float64(n) * 0.1
	if complexity > 0.5 {
		complexity = 0.5
	}

	rate := float64(wpm) * (1.0 - complexity*0.2)
	seconds := float64(n) * 60.0 / rate
	return time.Duration(seconds * float64(time.Second))
}
