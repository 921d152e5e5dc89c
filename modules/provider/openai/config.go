package openai

import (
	"cmp"
	"time"
)

const defaultTimeout = "30s"

// Config holds the YAML settings for the provider.openai module.
type Config struct {
	// APIKey authenticates against the API, typically sk-...
	// When empty, the OPENAI_API_KEY environment variable is used.
	APIKey string `yaml:"api_key"`

	// Model names the chat model (required).
	Model string `yaml:"model"`

	// BaseURL overrides the API endpoint, for proxies and compatible
	// servers. The SDK default is https://api.openai.com/v1.
	BaseURL string `yaml:"base_url"`

	// MaxTokens caps the completion length when the request does not
	// carry its own limit.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature and TopP tune sampling; nil leaves the API defaults.
	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`

	// Timeout bounds non-streaming requests, as a duration string.
	// The default is "30s".
	Timeout string `yaml:"timeout"`

	// ContextWindow overrides the built-in per-model table when positive.
	ContextWindow int `yaml:"context_window"`
}

// defaults fills in zero-value fields.
func (c *Config) defaults() {
	c.Timeout = cmp.Or(c.Timeout, defaultTimeout)
}

// parsedTimeout converts the Timeout string into a time.Duration.
func (c *Config) parsedTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Timeout)
}

// contextWindows pins the advertised window, in tokens, for the chat
// models the API serves. Consulted when context_window is not set.
var contextWindows = map[string]int{
	// GPT-3.5 and the original GPT-4
	"gpt-3.5-turbo": 16385,
	"gpt-4":         8192,

	// GPT-4 turbo and omni
	"gpt-4o":              128000,
	"gpt-4o-mini":         128000,
	"gpt-4-turbo":         128000,
	"gpt-4-turbo-preview": 128000,

	// GPT-4.1 long-context line
	"gpt-4.1":         1048576,
	"gpt-4.1-mini":    1048576,
	"gpt-4.1-nano":    1048576,
	"gpt-4.5-preview": 128000,

	// o-series reasoning models
	"o1":         200000,
	"o1-mini":    128000,
	"o1-preview": 128000,
	"o1-pro":     200000,
	"o3":         200000,
	"o3-mini":    200000,
	"o4-mini":    200000,
}

// contextWindowFor resolves the context window for a model: explicit config
// wins, then the known-model table, then zero (callers treat zero as unknown).
func (c *Config) contextWindowFor(model string) int {
	if c.ContextWindow > 0 {
		return c.ContextWindow
	}
	return contextWindows[model]
}
