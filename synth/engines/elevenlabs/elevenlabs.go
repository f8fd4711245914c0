// Package elevenlabs provides a synthesis engine backed by the
// ElevenLabs REST API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readaloud/synth"
)

// MP3SampleRate of the API's mp3 output.
const MP3SampleRate = 44100

const (
	baseURL      = "https://api.elevenlabs.io"
	defaultModel = "eleven_flash_v2_5"
	defaultVoice = "pNInz6obpgDQGcFmaJgB"
	outputFormat = "mp3_44100_128"
)

// Config holds ElevenLabs engine settings.
type Config struct {
	APIKey  string `yaml:"api_key" env:"READALOUD_ELEVENLABS_API_KEY"`
	VoiceID string `yaml:"voice_id" env:"READALOUD_ELEVENLABS_VOICE_ID"`
	ModelID string `yaml:"model_id" env:"READALOUD_ELEVENLABS_MODEL_ID" envDefault:"eleven_flash_v2_5"`
}

// Engine implements synth.Engine using the ElevenLabs text-to-speech
// endpoint.
type Engine struct {
	cfg    Config
	client *http.Client
	logger *log.Logger
}

var _ synth.Engine = (*Engine)(nil)

// New creates an ElevenLabs engine.
func New(cfg Config) (*Engine, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("elevenlabs: API key is required")
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = defaultVoice
	}
	if cfg.ModelID == "" {
		cfg.ModelID = defaultModel
	}
	return &Engine{
		cfg:    cfg,
		client: &http.Client{Timeout: 90 * time.Second},
		logger: log.Default().With("engine", "elevenlabs"),
	}, nil
}

// Name implements synth.Engine.
func (e *Engine) Name() string { return "elevenlabs" }

type speechRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize implements synth.Engine. Output is MP3.
func (e *Engine) Synthesize(ctx context.Context, text string) (*synth.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, synth.ErrEmptyText
	}

	body, err := json.Marshal(speechRequest{
		Text:    text,
		ModelID: e.cfg.ModelID,
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", baseURL, e.cfg.VoiceID, outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.cfg.APIKey)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w: %v", synth.ErrGenerationFailed, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("elevenlabs: %w: status %d: %s",
			synth.ErrGenerationFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: reading response: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("elevenlabs: %w: empty response", synth.ErrGenerationFailed)
	}

	e.logger.Debug("synthesized", "chars", len(text), "bytes", len(data), "took", time.Since(start))

	return &synth.Audio{
		Data:       data,
		Format:     synth.FormatMP3,
		SampleRate: MP3SampleRate,
		Channels:   1,
		Duration:   synth.EstimateDuration(text, 0),
	}, nil
}
