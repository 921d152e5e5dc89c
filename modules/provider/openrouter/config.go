package openrouter

import (
	"cmp"
	"time"
)

const (
	defaultTimeout = "120s"
	defaultBaseURL = "https://openrouter.ai/api/v1"
)

// Config holds the YAML settings for the provider.openrouter module.
type Config struct {
	// APIKey authenticates against OpenRouter, typically sk-or-v1-...
	// When empty, the OPENROUTER_API_KEY environment variable is used.
	APIKey string `yaml:"api_key"`

	// Model picks the upstream model (required). The shorthand "auto"
	// maps to "openrouter/auto".
	Model string `yaml:"model"`

	// BaseURL points at the OpenRouter API, defaulting to
	// "https://openrouter.ai/api/v1".
	BaseURL string `yaml:"base_url"`

	// Referer is sent as the HTTP-Referer attribution header (optional).
	Referer string `yaml:"referer"`

	// Title is sent as the X-Title attribution header (optional).
	Title string `yaml:"title"`

	// Timeout bounds non-streaming requests, as a duration string.
	// The default is "120s".
	Timeout string `yaml:"timeout"`

	// ContextWindow overrides the built-in per-model lookup table when
	// positive.
	ContextWindow int `yaml:"context_window"`
}

// defaults fills in zero-value fields.
func (c *Config) defaults() {
	c.BaseURL = cmp.Or(c.BaseURL, defaultBaseURL)
	c.Timeout = cmp.Or(c.Timeout, defaultTimeout)
}

// resolvedModel returns the canonical form of a model name.
func resolvedModel(model string) string {
	if model == "auto" {
		return "openrouter/auto"
	}
	return model
}

// parsedTimeout converts the Timeout string into a time.Duration.
func (c *Config) parsedTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Timeout)
}

// contextWindowFor resolves the context window for a model: explicit config
// wins, then the built-in lookup table with its default for unlisted models.
func (c *Config) contextWindowFor(model string) int {
	if c.ContextWindow > 0 {
		return c.ContextWindow
	}
	return lookupContextWindow(model)
}
