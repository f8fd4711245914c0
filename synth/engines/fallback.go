// Package engines provides synthesis engine composition helpers.
package engines

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readaloud/synth"
)

// ErrNoEngines is returned when a fallback chain is created empty.
var ErrNoEngines = errors.New("engines: fallback chain needs at least one engine")

// Fallback tries a chain of engines in order and returns the first
// success. Per-engine failures are logged; the last error is returned
// when every engine fails.
type Fallback struct {
	chain  []synth.Engine
	logger *log.Logger
}

var _ synth.Engine = (*Fallback)(nil)

// NewFallback creates a fallback chain.
func NewFallback(chain ...synth.Engine) (*Fallback, error) {
	if len(chain) == 0 {
		return nil, ErrNoEngines
	}
	return &Fallback{
		chain:  chain,
		logger: log.Default().With("engine", "fallback"),
	}, nil
}

// Name implements synth.Engine.
func (f *Fallback) Name() string {
	name := "fallback("
	for i, e := range f.chain {
		if i > 0 {
			name += ","
		}
		name += e.Name()
	}
	return name + ")"
}

// Synthesize implements synth.Engine.
func (f *Fallback) Synthesize(ctx context.Context, text string) (*synth.Audio, error) {
	var lastErr error
	for _, e := range f.chain {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		audio, err := e.Synthesize(ctx, text)
		if err == nil {
			return audio, nil
		}
		lastErr = err
		f.logger.Warn("engine failed, trying next", "failed", e.Name(), "error", err)
	}
	return nil, fmt.Errorf("all engines failed: %w", lastErr)
}
