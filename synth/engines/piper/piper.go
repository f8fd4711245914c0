// Package piper provides an offline synthesis engine backed by the
// Piper TTS binary. Each call runs a fresh process with stdin
// configured before start, avoiding stdin race conditions.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readaloud/synth"
)

// DefaultSampleRate matches the medium Piper voices.
const DefaultSampleRate = 22050

// Config holds Piper engine settings.
type Config struct {
	// Binary is the piper executable name or path.
	Binary string `yaml:"binary" env:"READALOUD_PIPER_BINARY" envDefault:"piper"`

	// ModelPath is the .onnx voice model (required).
	ModelPath string `yaml:"model_path" env:"READALOUD_PIPER_MODEL_PATH"`

	// ConfigPath defaults to ModelPath with a .json extension.
	ConfigPath string `yaml:"config_path" env:"READALOUD_PIPER_CONFIG_PATH"`

	// SampleRate of the raw PCM output.
	SampleRate int `yaml:"sample_rate" env:"READALOUD_PIPER_SAMPLE_RATE" envDefault:"22050"`

	// LengthScale adjusts speaking speed (1.0 = normal, lower = faster).
	LengthScale float64 `yaml:"length_scale" env:"READALOUD_PIPER_LENGTH_SCALE" envDefault:"1.0"`
}

// Engine implements synth.Engine using the piper binary.
type Engine struct {
	cfg    Config
	logger *log.Logger
}

// New validates config and creates a Piper engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Binary == "" {
		cfg.Binary = "piper"
	}
	if cfg.ModelPath == "" {
		return nil, errors.New("piper: model path is required")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("piper: model file: %w", err)
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = strings.TrimSuffix(cfg.ModelPath, filepath.Ext(cfg.ModelPath)) + ".json"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.LengthScale == 0 {
		cfg.LengthScale = 1.0
	}
	if _, err := exec.LookPath(cfg.Binary); err != nil {
		return nil, fmt.Errorf("piper: %w: %v", synth.ErrEngineNotAvailable, err)
	}
	return &Engine{
		cfg:    cfg,
		logger: log.Default().With("engine", "piper"),
	}, nil
}

// Name implements synth.Engine.
func (e *Engine) Name() string { return "piper" }

// Synthesize implements synth.Engine. Output is raw 16-bit mono PCM.
func (e *Engine) Synthesize(ctx context.Context, text string) (*synth.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, synth.ErrEmptyText
	}

	args := []string{
		"--model", e.cfg.ModelPath,
		"--config", e.cfg.ConfigPath,
		"--output-raw",
		"--length-scale", strconv.FormatFloat(e.cfg.LengthScale, 'f', -1, 64),
	}

	cmd := exec.CommandContext(ctx, e.cfg.Binary, args...)

	// Stdin must be set before the process starts; wiring it up
	// afterwards races with piper reading an empty pipe.
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("piper: %w: %s", synth.ErrGenerationFailed, msg)
		}
		return nil, fmt.Errorf("piper: %w: %v", synth.ErrGenerationFailed, err)
	}

	data := stdout.Bytes()
	if len(data) == 0 {
		return nil, fmt.Errorf("piper: %w: empty output", synth.ErrGenerationFailed)
	}

	samples := len(data) / 2
	duration := time.Duration(float64(samples) / float64(e.cfg.SampleRate) * float64(time.Second))
	e.logger.Debug("synthesized", "chars", len(text), "bytes", len(data),
		"duration", duration, "took", time.Since(start))

	return &synth.Audio{
		Data:       data,
		Format:     synth.FormatPCM16,
		SampleRate: e.cfg.SampleRate,
		Channels:   1,
		Duration:   duration,
	}, nil
}
