package whisper

import (
	"fmt"
	"time"
)

const (
	defaultModel   = "whisper-1"
	defaultTimeout = "60s"
)

// Config holds the transcriber.whisper module configuration.
type Config struct {
	// APIKey authenticates against the audio API. Falls back to the
	// OPENAI_API_KEY environment variable when empty.
	APIKey string `yaml:"api_key"`

	// Model is the transcription model. Defaults to whisper-1.
	Model string `yaml:"model"`

	// BaseURL overrides the API endpoint, e.g. for a self-hosted
	// Whisper-compatible server.
	BaseURL string `yaml:"base_url"`

	// Language is an ISO 639-1 hint (e.g. "en"). Empty means auto-detect.
	Language string `yaml:"language"`

	// Timeout bounds a single transcription request. Defaults to 60s;
	// voice notes upload the full payload before the API answers.
	Timeout string `yaml:"timeout"`
}

// defaults fills in zero values.
func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout == "" {
		c.Timeout = defaultTimeout
	}
}

// parsedTimeout returns the timeout as a time.Duration.
// Assumes the value has been validated by validateTimeout.
func (c *Config) parsedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// validateTimeout checks that the timeout string is a valid Go duration.
func (c *Config) validateTimeout() error {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return fmt.Errorf("transcriber.whisper: invalid timeout %q: %w", c.Timeout, err)
	}
	if d <= 0 {
		return fmt.Errorf("transcriber.whisper: timeout must be positive, got %q", c.Timeout)
	}
	return nil
}
