package pipeline

import (
	"errors"
	"fmt"
)

// Common pipeline errors.
var (
	ErrQueueClosed       = errors.New("pipeline: work queue is closed")
	ErrBufferClosed      = errors.New("pipeline: playback buffer is closed")
	ErrBufferDrained     = errors.New("pipeline: playback buffer drained")
	ErrSessionTerminal   = errors.New("pipeline: session already reached a terminal state")
	ErrInvalidTransition = errors.New("pipeline: invalid state transition")
)

// errStopRequested is returned by the controller loop when a stop
// command was consumed; the session maps it to StateStopped.
var errStopRequested = errors.New("pipeline: stop requested")

// Kind classifies a pipeline error by the component that produced it.
type Kind int

const (
	// KindFetch is a content source failure.
	KindFetch Kind = iota
	// KindSegmentation is a chunking failure on malformed input.
	KindSegmentation
	// KindSynthesis is a per-chunk synthesis failure, including timeout.
	KindSynthesis
	// KindPlayback is a playback device failure.
	KindPlayback
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindFetch:
		return "fetch"
	case KindSegmentation:
		return "segmentation"
	case KindSynthesis:
		return "synthesis"
	case KindPlayback:
		return "playback"
	default:
		return "unknown"
	}
}

// Error is a classified pipeline error, optionally scoped to a chunk.
type Error struct {
	Kind  Kind
	Chunk int // chunk index, or -1 when not chunk-scoped
	Err   error
}

// NewError creates a session-scoped pipeline error.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Chunk: -1, Err: err}
}

// NewChunkError creates a pipeline error scoped to one chunk.
func NewChunkError(kind Kind, index uint, err error) *Error {
	return &Error{Kind: kind, Chunk: int(index), Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Chunk >= 0 {
		return fmt.Sprintf("%s error on chunk %d: %v", e.Kind, e.Chunk, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a pipeline Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}
