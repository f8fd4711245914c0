// Package pipeline implements the progressive streaming pipeline:
// indexed text chunks are synthesized concurrently, reordered, buffered
// with watermark backpressure, and played strictly in order, with
// pause/resume/stop/skip control and live progress reporting.
package pipeline

import (
	"time"

	"github.com/dgnsrekt/readaloud/synth"
)

// TextChunk is a bounded span of source text destined for one
// synthesis call. Immutable once created.
type TextChunk struct {
	Index     uint
	Text      string
	CharCount int
}

// ArtifactStatus describes the outcome of synthesizing one chunk.
type ArtifactStatus int

const (
	// StatusReady indicates the artifact holds playable audio.
	StatusReady ArtifactStatus = iota
	// StatusFailed indicates synthesis failed; the artifact is a
	// placeholder released in order so playback can skip past it.
	StatusFailed
)

// String returns the string representation of the status.
func (s ArtifactStatus) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AudioArtifact is one synthesized chunk. Ownership transfers along the
// pipeline (worker, reorder buffer, playback buffer, controller); the
// current holder is the only writer.
type AudioArtifact struct {
	Index    uint
	Audio    *synth.Audio // nil when Status is StatusFailed
	Duration time.Duration
	Status   ArtifactStatus
	Err      error // failure reason when Status is StatusFailed
}

// Failed reports whether the artifact is a failure placeholder.
func (a *AudioArtifact) Failed() bool {
	return a.Status == StatusFailed
}
