// Package anthropic implements the provider.anthropic module, providing
// Anthropic Messages API support with streaming and tool use via the
// official SDK.
package anthropic

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/provider"
	"github.com/parleyhq/parley/internal/security"
	"gopkg.in/yaml.v3"
)

func init() { core.RegisterModule(&Provider{}) }

// Interface guards.
var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
	_ provider.ModelSwitcher = (*Provider)(nil)

	_ core.Module       = (*Provider)(nil)
	_ core.Configurable = (*Provider)(nil)
	_ core.Provisioner  = (*Provider)(nil)
	_ core.Validator    = (*Provider)(nil)
)

// Provider is the provider.anthropic module. It implements provider.Provider
// and provider.HealthChecker against the Anthropic Messages API.
type Provider struct {
	config Config
	client *sdkanthropic.Client
	logger *slog.Logger
	apiKey string

	// mu guards model and contextWindow, which SetModel may change at runtime.
	mu            sync.RWMutex
	model         string
	contextWindow int
}

// ModuleInfo returns the module metadata for registration.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.anthropic",
		New: func() core.Module { return new(Provider) },
	}
}

// Configure decodes the YAML configuration and applies defaults.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return fmt.Errorf("provider.anthropic: decoding config: %w", err)
	}
	p.config.defaults()
	return nil
}

// Provision resolves the API key, builds the SDK client, and registers this
// provider as a service.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.logger = ctx.Logger

	// Resolve API key: config value, then the configured environment
	// variable, then ANTHROPIC_API_KEY.
	p.apiKey = p.config.APIKey
	if p.apiKey == "" && p.config.APIKeyEnv != "" {
		p.apiKey = os.Getenv(p.config.APIKeyEnv)
	}
	if p.apiKey == "" {
		if envKey, ok := os.LookupEnv("ANTHROPIC_API_KEY"); ok {
			p.apiKey = envKey
		}
	}

	// Hand the key to the credential store so logs redact it.
	if p.apiKey != "" {
		if svc, ok := ctx.Service("security.credentials"); ok {
			if store, ok := svc.(*security.CredentialStore); ok {
				store.Set("anthropic_api_key", p.apiKey)
			}
		}
	}

	// Assemble SDK client options.
	var opts []option.RequestOption
	if p.apiKey != "" {
		opts = append(opts, option.WithAPIKey(p.apiKey))
	}
	if p.config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.config.BaseURL))
	}
	// Disable SDK-level retries - the provider chain handles retries.
	opts = append(opts, option.WithMaxRetries(0))

	client := sdkanthropic.NewClient(opts...)
	p.client = &client

	p.model = p.config.Model
	p.contextWindow = p.config.windowForModel(p.model)
	if p.config.ContextWindow == 0 {
		p.logger.Info("resolved context window from model prefix",
			"model", p.model,
			"context_window", p.contextWindow,
		)
	}

	ctx.RegisterService("provider.anthropic", p)

	return nil
}

// Validate checks that required configuration fields are set.
func (p *Provider) Validate() error {
	if p.apiKey == "" {
		return errors.New("provider.anthropic: api_key is required (config, api_key_env, or ANTHROPIC_API_KEY)")
	}
	if p.config.Model == "" {
		return errors.New("provider.anthropic: model must not be empty")
	}
	if p.client == nil {
		return errors.New("provider.anthropic: client missing, Provision was not run")
	}
	return nil
}

// ContextWindowSize reports the active model's context window in tokens.
func (p *Provider) ContextWindowSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.contextWindow
}

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// currentModel returns the active model under the read lock.
func (p *Provider) currentModel() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// SetModel implements provider.ModelSwitcher. Any non-empty model name is
// accepted; the context window is re-resolved from the new name, and an
// explicit context_window override survives the switch.
func (p *Provider) SetModel(model string) error {
	if model == "" {
		return fmt.Errorf("provider.anthropic: model must not be empty")
	}

	window := p.config.windowForModel(model)

	p.mu.Lock()
	p.model = model
	p.contextWindow = window
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.Info("model switched", "provider", "provider.anthropic", "model", model, "context_window", window)
	}
	return nil
}
