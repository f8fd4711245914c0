package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
)

const defaultConfig = `# synthesis engine: mock, piper, openai, elevenlabs,
# or a comma-separated fallback chain like "piper,mock"
engine: "piper"
# extract readable text from markdown sources
markdown: true
# enable debug logging
verbose: false

segment:
  # chunk size bounds in characters
  min_size: 40
  max_size: 300
  # extra patterns a sentence must never be split inside
  # extra_protected: ["No.", "Op."]

pipeline:
  # concurrent synthesis workers
  workers: 3
  # per-chunk synthesis timeout
  synthesis_timeout: "30s"
  # playback buffer tuning
  buffer_capacity: 5
  low_watermark: 2
  high_watermark: 8
  # bytes of text fetched before segmentation runs
  feed_threshold: 4096
  # minimum delay between progress reports
  progress_interval: "2s"

piper:
  binary: "piper"
  # model_path: "/path/to/en_US-lessac-medium.onnx"
  # config_path: "/path/to/en_US-lessac-medium.onnx.json"
  sample_rate: 22050
  length_scale: 1.0

openai:
  # api_key: "sk-..."
  model: "tts-1"
  voice: "alloy"
  speed: 1.0

elevenlabs:
  # api_key: "..."
  voice_id: "21m00Tcm4TlvDq8ikWAM"
  model_id: "eleven_flash_v2_5"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Edit the readaloud config file",
	Long:    "\nEdit the readaloud config file. We'll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.",
	Example: "  readaloud config\n  readaloud config --config path/to/config.yml",
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("readaloud", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		scope := gap.NewScope(gap.User, "readaloud")
		dirs, err := scope.ConfigDirs()
		if err != nil || len(dirs) == 0 {
			return fmt.Errorf("could not find a configuration directory: %w", err)
		}
		configFile = filepath.Join(dirs[0], "readaloud.yml")
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
