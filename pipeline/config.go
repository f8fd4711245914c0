package pipeline

import (
	"fmt"
	"time"
)

// Config holds pipeline tuning. All fields have working defaults; zero
// values are replaced by them.
type Config struct {
	// Workers is the synthesis pool size.
	Workers int `yaml:"workers" env:"READALOUD_WORKERS"`

	// SynthesisTimeout bounds each synthesis call.
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout" env:"READALOUD_SYNTHESIS_TIMEOUT"`

	// QueueSize bounds the chunk queue between feeder and workers.
	QueueSize int `yaml:"queue_size" env:"READALOUD_QUEUE_SIZE"`

	// BufferCapacity bounds the playback buffer.
	BufferCapacity int `yaml:"buffer_capacity" env:"READALOUD_BUFFER_CAPACITY"`

	// LowWatermark is the prebuffer threshold before playback starts.
	LowWatermark int `yaml:"low_watermark" env:"READALOUD_LOW_WATERMARK"`

	// HighWatermark throttles workers when reorder-pending plus
	// buffered artifacts reach it.
	HighWatermark int `yaml:"high_watermark" env:"READALOUD_HIGH_WATERMARK"`

	// FeedThreshold is the byte count accumulated before segmenting.
	FeedThreshold int `yaml:"feed_threshold" env:"READALOUD_FEED_THRESHOLD"`

	// ProgressInterval bounds how often progress snapshots are
	// published.
	ProgressInterval time.Duration `yaml:"progress_interval" env:"READALOUD_PROGRESS_INTERVAL"`
}

// DefaultConfig returns the default pipeline tuning.
func DefaultConfig() Config {
	return Config{
		Workers:          DefaultWorkers,
		SynthesisTimeout: DefaultSynthesisTimeout,
		QueueSize:        DefaultQueueSize,
		BufferCapacity:   DefaultBufferCapacity,
		LowWatermark:     DefaultLowWatermark,
		HighWatermark:    DefaultHighWatermark,
		ProgressInterval: DefaultProgressInterval,
	}
}

// Validate checks the configuration, after filling zero values with
// defaults.
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.SynthesisTimeout <= 0 {
		c.SynthesisTimeout = def.SynthesisTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = def.BufferCapacity
	}
	if c.LowWatermark <= 0 {
		c.LowWatermark = def.LowWatermark
	}
	if c.HighWatermark <= 0 {
		c.HighWatermark = def.HighWatermark
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = def.ProgressInterval
	}

	if c.Workers > 16 {
		return fmt.Errorf("pipeline: %d workers exceeds the maximum of 16", c.Workers)
	}
	if c.LowWatermark > c.BufferCapacity {
		return fmt.Errorf("pipeline: low watermark %d exceeds buffer capacity %d", c.LowWatermark, c.BufferCapacity)
	}
	if c.HighWatermark < c.BufferCapacity {
		return fmt.Errorf("pipeline: high watermark %d below buffer capacity %d", c.HighWatermark, c.BufferCapacity)
	}
	return nil
}
