// Package openai implements the provider.openai module against the Chat
// Completions API, with streaming and tool calling.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/provider"
	"github.com/parleyhq/parley/internal/security"
	sdkopenai "github.com/sashabaranov/go-openai"
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

// Provider is the provider.openai module. It implements provider.Provider
// and provider.HealthChecker against the OpenAI Chat Completions API.
type Provider struct {
	config Config
	logger *slog.Logger
	apiKey string

	// Separate clients for non-streaming and streaming requests.
	// http.Client.Timeout is a hard deadline for the entire response body,
	// which would kill long-lived SSE streams. The streaming client uses no
	// timeout; cancellation is handled via context.
	client       *sdkopenai.Client
	streamClient *sdkopenai.Client

	// mu guards model and contextWindow, which SetModel may change at runtime.
	mu            sync.RWMutex
	model         string
	contextWindow int
}

// ModuleInfo returns the module metadata for registration.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.openai",
		New: func() core.Module { return new(Provider) },
	}
}

// Configure decodes the YAML configuration and applies defaults.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return fmt.Errorf("provider.openai: decoding config: %w", err)
	}
	p.config.defaults()
	p.config.BaseURL = strings.TrimSuffix(p.config.BaseURL, "/")
	return nil
}

// Provision resolves the API key, builds the SDK clients, and registers this
// provider as a service.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.logger = ctx.Logger

	timeout, err := p.config.parsedTimeout()
	if err != nil {
		return fmt.Errorf("provider.openai: invalid timeout %q: %w", p.config.Timeout, err)
	}

	// Resolve API key: config takes precedence over environment variable.
	p.apiKey = p.config.APIKey
	if p.apiKey == "" {
		if envKey, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			p.apiKey = envKey
		}
	}

	// Hand the key to the credential store so logs redact it.
	if p.apiKey != "" {
		if svc, ok := ctx.Service("security.credentials"); ok {
			if store, ok := svc.(*security.CredentialStore); ok {
				store.Set("openai_api_key", p.apiKey)
			}
		}
	}

	p.client, p.streamClient = p.buildClients(timeout)

	p.model = p.config.Model
	p.contextWindow = p.config.contextWindowFor(p.model)

	ctx.RegisterService("provider.openai", p)
	return nil
}

// buildClients constructs the request and stream clients from the current
// configuration.
func (p *Provider) buildClients(timeout time.Duration) (reqClient, streamClient *sdkopenai.Client) {
	base := sdkopenai.DefaultConfig(p.apiKey)
	if p.config.BaseURL != "" {
		base.BaseURL = p.config.BaseURL
	}

	reqCfg := base
	reqCfg.HTTPClient = &http.Client{Timeout: timeout}

	streamCfg := base
	streamCfg.HTTPClient = &http.Client{}

	return sdkopenai.NewClientWithConfig(reqCfg), sdkopenai.NewClientWithConfig(streamCfg)
}

// Validate checks that required configuration fields are set.
func (p *Provider) Validate() error {
	if p.apiKey == "" {
		return fmt.Errorf("provider.openai: api_key is required (config or OPENAI_API_KEY)")
	}
	if p.config.Model == "" {
		return fmt.Errorf("provider.openai: model is required")
	}
	if p.contextWindow <= 0 {
		return fmt.Errorf("provider.openai: context_window must be set for unknown model %q", p.config.Model)
	}
	if _, err := p.config.parsedTimeout(); err != nil {
		return fmt.Errorf("provider.openai: invalid timeout %q: %w", p.config.Timeout, err)
	}
	return nil
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	p.mu.RLock()
	model := p.model
	p.mu.RUnlock()

	resp, err := p.client.CreateChatCompletion(ctx, convertRequest(req, &p.config, model))
	if err != nil {
		return provider.CompletionResponse{}, classifyError(err)
	}
	return convertResponse(resp), nil
}

// Stream implements provider.Provider. The returned channel is closed when
// the stream ends; mid-stream failures arrive as a chunk with Err set.
func (p *Provider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	p.mu.RLock()
	model := p.model
	p.mu.RUnlock()

	sdkReq := convertRequest(req, &p.config, model)
	sdkReq.Stream = true
	sdkReq.StreamOptions = &sdkopenai.StreamOptions{IncludeUsage: true}

	stream, err := p.streamClient.CreateChatCompletionStream(ctx, sdkReq)
	if err != nil {
		return nil, classifyError(err)
	}

	ch := make(chan provider.StreamChunk)
	go pumpStream(ctx, stream, ch)
	return ch, nil
}

// ContextWindowSize implements provider.Provider.
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

// SetModel implements provider.ModelSwitcher. Switching to a model whose
// context window cannot be resolved is rejected so the context builder never
// runs with a zero budget.
func (p *Provider) SetModel(model string) error {
	if model == "" {
		return fmt.Errorf("provider.openai: model must not be empty")
	}
	window := p.config.contextWindowFor(model)
	if window <= 0 {
		return fmt.Errorf("provider.openai: unknown context window for model %q; set context_window explicitly", model)
	}

	p.mu.Lock()
	p.model = model
	p.contextWindow = window
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.Info("model switched", "provider", "provider.openai", "model", model, "context_window", window)
	}
	return nil
}

// HealthCheck implements provider.HealthChecker. A model listing is the
// cheapest authenticated call the API offers.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return classifyError(err)
	}
	return nil
}
