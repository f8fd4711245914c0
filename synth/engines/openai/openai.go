// Package openai provides a synthesis engine backed by the OpenAI
// speech API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/dgnsrekt/readaloud/synth"
)

// MP3SampleRate of the API's mp3 output.
const MP3SampleRate = 24000

// Config holds OpenAI engine settings.
type Config struct {
	APIKey string  `yaml:"api_key" env:"READALOUD_OPENAI_API_KEY"`
	Model  string  `yaml:"model" env:"READALOUD_OPENAI_MODEL" envDefault:"tts-1"`
	Voice  string  `yaml:"voice" env:"READALOUD_OPENAI_VOICE" envDefault:"alloy"`
	Speed  float64 `yaml:"speed" env:"READALOUD_OPENAI_SPEED" envDefault:"1.0"`
}

// Engine implements synth.Engine using the OpenAI speech endpoint.
type Engine struct {
	client *goopenai.Client
	cfg    Config
	logger *log.Logger
}

var _ synth.Engine = (*Engine)(nil)

// New creates an OpenAI engine.
func New(cfg Config) (*Engine, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = string(goopenai.TTSModel1)
	}
	if cfg.Voice == "" {
		cfg.Voice = string(goopenai.VoiceAlloy)
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1.0
	}
	return &Engine{
		client: goopenai.NewClient(cfg.APIKey),
		cfg:    cfg,
		logger: log.Default().With("engine", "openai"),
	}, nil
}

// Name implements synth.Engine.
func (e *Engine) Name() string { return "openai" }

// Synthesize implements synth.Engine. Output is MP3.
func (e *Engine) Synthesize(ctx context.Context, text string) (*synth.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, synth.ErrEmptyText
	}

	start := time.Now()
	res, err := e.client.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(e.cfg.Model),
		Input:          text,
		Voice:          goopenai.SpeechVoice(e.cfg.Voice),
		ResponseFormat: goopenai.SpeechResponseFormatMp3,
		Speed:          e.cfg.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w: %v", synth.ErrGenerationFailed, err)
	}
	defer res.Close() //nolint:errcheck

	data, err := io.ReadAll(res)
	if err != nil {
		return nil, fmt.Errorf("openai: reading speech response: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("openai: %w: empty response", synth.ErrGenerationFailed)
	}

	duration := synth.EstimateDuration(text, 0)
	e.logger.Debug("synthesized", "chars", len(text), "bytes", len(data), "took", time.Since(start))

	return &synth.Audio{
		Data:       data,
		Format:     synth.FormatMP3,
		SampleRate: MP3SampleRate,
		Channels:   1,
		Duration:   duration,
	}, nil
}
