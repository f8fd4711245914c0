package main

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/readaloud/pipeline"
	"github.com/dgnsrekt/readaloud/synth/engines/elevenlabs"
	"github.com/dgnsrekt/readaloud/synth/engines/openai"
	"github.com/dgnsrekt/readaloud/synth/engines/piper"
)

// SegmentConfig holds chunking settings.
type SegmentConfig struct {
	// MinSize keeps chunks accumulating sentences below this length.
	MinSize int `yaml:"min_size" env:"READALOUD_MIN_CHUNK_SIZE"`

	// MaxSize force-closes chunks at this length.
	MaxSize int `yaml:"max_size" env:"READALOUD_MAX_CHUNK_SIZE"`

	// ExtraProtected adds abbreviations to the built-in table.
	ExtraProtected []string `yaml:"extra_protected" env:"READALOUD_EXTRA_PROTECTED" envSeparator:","`
}

// Config is the full application configuration, layered defaults <
// environment < config file < flags.
type Config struct {
	// Engine selects the synthesis engine: mock, piper, openai, or
	// elevenlabs.
	Engine string `yaml:"engine" env:"READALOUD_ENGINE" envDefault:"piper"`

	// Markdown extracts readable text from markdown sources.
	Markdown bool `yaml:"markdown" env:"READALOUD_MARKDOWN" envDefault:"true"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose" env:"READALOUD_VERBOSE"`

	Segment    SegmentConfig     `yaml:"segment"`
	Pipeline   pipeline.Config   `yaml:"pipeline"`
	Piper      piper.Config      `yaml:"piper"`
	OpenAI     openai.Config     `yaml:"openai"`
	ElevenLabs elevenlabs.Config `yaml:"elevenlabs"`
}

// LoadConfig builds the configuration from the environment and an
// optional YAML file. An empty path skips the file layer; a file
// passed explicitly overrides ambient environment variables.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.Pipeline.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
