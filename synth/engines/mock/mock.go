// Package mock provides a deterministic synthesis engine for testing.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/readaloud/synth"
)

// SampleRate of generated mock audio.
const SampleRate = 22050

// Engine implements synth.Engine with deterministic silent PCM output
// sized from a words-per-minute estimate. Failures and latency are
// scriptable per call or per text substring.
type Engine struct {
	mu sync.Mutex

	delay    time.Duration
	wpm      int
	failSubs []string      // Texts containing any of these fail
	hangSubs []string      // Texts containing any of these block until ctx expires
	failErr  error
	calls    int
	texts    []string
}

// Option configures the mock engine.
type Option func(*Engine)

// WithDelay sets a simulated per-call synthesis delay.
func WithDelay(d time.Duration) Option {
	return func(e *Engine) { e.delay = d }
}

// WithWordsPerMinute sets the speaking rate used to size output.
func WithWordsPerMinute(wpm int) Option {
	return func(e *Engine) { e.wpm = wpm }
}

// FailOn makes any text containing sub return err (or a generic
// generation failure when err is nil).
func FailOn(sub string, err error) Option {
	return func(e *Engine) {
		e.failSubs = append(e.failSubs, sub)
		if err != nil {
			e.failErr = err
		}
	}
}

// HangOn makes any text containing sub block until the context is
// cancelled, simulating a synthesis timeout.
func HangOn(sub string) Option {
	return func(e *Engine) { e.hangSubs = append(e.hangSubs, sub) }
}

// New creates a mock engine.
func New(opts ...Option) *Engine {
	e := &Engine{wpm: synth.DefaultWordsPerMinute}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Name implements synth.Engine.
func (e *Engine) Name() string { return "mock" }

// Synthesize implements synth.Engine.
func (e *Engine) Synthesize(ctx context.Context, text string) (*synth.Audio, error) {
	e.mu.Lock()
	e.calls++
	e.texts = append(e.texts, text)
	delay := e.delay
	failErr := e.failErr
	fail := containsAny(text, e.failSubs)
	hang := containsAny(text, e.hangSubs)
	wpm := e.wpm
	e.mu.Unlock()

	if text == "" {
		return nil, synth.ErrEmptyText
	}
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		if failErr != nil {
			return nil, failErr
		}
		return nil, fmt.Errorf("%w: scripted failure", synth.ErrGenerationFailed)
	}

	duration := synth.EstimateDuration(text, wpm)
	samples := int(duration.Seconds() * float64(SampleRate))
	return &synth.Audio{
		Data:       make([]byte, samples*2), // 16-bit mono silence
		Format:     synth.FormatPCM16,
		SampleRate: SampleRate,
		Channels:   1,
		Duration:   duration,
	}, nil
}

// Calls returns how many synthesis calls were made.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Texts returns the texts synthesized so far, in call order.
func (e *Engine) Texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.texts))
	copy(out, e.texts)
	return out
}

func containsAny(text string, subs []string) bool {
	for _, s := range subs {
		if s != "" && strings.Contains(text, s) {
			return true
		}
	}
	return false
}
