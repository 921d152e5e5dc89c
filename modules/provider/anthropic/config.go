package anthropic

import (
	"cmp"
	"strings"
	"time"
)

// defaultModel is the model used when the config does not name one.
// Pinned to a dated release; bump it deliberately rather than tracking
// a floating alias.
const defaultModel = "claude-sonnet-4-5-20250929"

// defaultContextWindow covers the Claude 3.x and 4.x families (200k tokens).
const defaultContextWindow = 200_000

// legacyWindows maps model name prefixes of older families to their
// smaller windows. Longer prefixes come first so "claude-2.1" wins
// over "claude-2".
var legacyWindows = []struct {
	prefix string
	window int
}{
	{"claude-2.1", 200_000},
	{"claude-2", 100_000},
	{"claude-instant", 100_000},
}

// defaultTimeout bounds the initial connection phase on the underlying
// transport as a response-header timeout. Streaming responses are not
// affected once the first byte arrives.
const defaultTimeout = 30 * time.Second

// Config is the YAML-decoded provider configuration.
type Config struct {
	Model         string        `yaml:"model"`
	APIKey        string        `yaml:"api_key"`
	APIKeyEnv     string        `yaml:"api_key_env"`
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxTokens     int           `yaml:"max_tokens"`
	ContextWindow int           `yaml:"context_window"`
}

// defaults fills zero-value fields.
func (c *Config) defaults() {
	c.Model = cmp.Or(c.Model, defaultModel)
	c.MaxTokens = cmp.Or(c.MaxTokens, 4096)
	c.Timeout = cmp.Or(c.Timeout, defaultTimeout)
}

// windowForModel returns the context window size for a model name.
// An explicit context_window override always wins; otherwise the window
// is resolved from the model name prefix. Model switches at runtime go
// through the same lookup, so crossing model families adjusts the
// window too.
func (c *Config) windowForModel(model string) int {
	if c.ContextWindow > 0 {
		return c.ContextWindow
	}
	for _, lw := range legacyWindows {
		if strings.HasPrefix(model, lw.prefix) {
			return lw.window
		}
	}
	return defaultContextWindow
}
