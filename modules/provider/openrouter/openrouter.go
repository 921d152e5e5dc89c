// Package openrouter implements the provider.openrouter module, reaching
// 200+ models through OpenRouter's OpenAI-compatible endpoint.
package openrouter

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

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

// Provider is the provider.openrouter module. It implements
// provider.Provider and provider.HealthChecker against OpenRouter's
// OpenAI-compatible API.
type Provider struct {
	config Config
	apiKey string

	// client serves bounded calls; streamClient carries no whole-response
	// timeout so long generations are not cut off, only connection setup
	// and response headers are bounded at the transport.
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
		ID:  "provider.openrouter",
		New: func() core.Module { return new(Provider) },
	}
}

// Configure decodes the YAML configuration and applies defaults.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return fmt.Errorf("openrouter: decoding config: %w", err)
	}
	p.config.defaults()
	p.config.BaseURL = strings.TrimSuffix(p.config.BaseURL, "/")
	return nil
}

// Provision resolves the API key, builds the SDK clients, and registers this
// provider as a service.
func (p *Provider) Provision(ctx *core.AppContext) error {
	timeout, err := p.config.parsedTimeout()
	if err != nil {
		return fmt.Errorf("openrouter: invalid timeout %q: %w", p.config.Timeout, err)
	}

	// Resolve API key: config takes precedence over environment variable.
	p.apiKey = p.config.APIKey
	if p.apiKey == "" {
		if envKey, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			p.apiKey = envKey
		}
	}

	// Hand the key to the credential store so logs redact it.
	if p.apiKey != "" {
		if svc, ok := ctx.Service("security.credentials"); ok {
			if store, ok := svc.(*security.CredentialStore); ok {
				store.Set("openrouter_api_key", p.apiKey)
			}
		}
	}

	base := sdkopenai.DefaultConfig(p.apiKey)
	base.BaseURL = p.config.BaseURL

	reqCfg := base
	reqCfg.HTTPClient = &http.Client{
		Timeout: timeout,
		Transport: &attributionTransport{
			referer: p.config.Referer,
			title:   p.config.Title,
		},
	}

	// The streaming client bounds connection setup and response headers at
	// the transport instead of using http.Client.Timeout, which is a hard
	// deadline for the entire body and would kill long-running streams.
	streamCfg := base
	streamCfg.HTTPClient = &http.Client{
		Transport: &attributionTransport{
			base: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
			},
			referer: p.config.Referer,
			title:   p.config.Title,
		},
	}

	p.client = sdkopenai.NewClientWithConfig(reqCfg)
	p.streamClient = sdkopenai.NewClientWithConfig(streamCfg)

	p.model = resolvedModel(p.config.Model)
	p.contextWindow = p.config.contextWindowFor(p.model)

	ctx.RegisterService("provider.openrouter", p)
	return nil
}

// Validate checks that required configuration fields are set.
func (p *Provider) Validate() error {
	if p.apiKey == "" && p.config.APIKey == "" {
		return fmt.Errorf("openrouter: api_key is required (config or OPENROUTER_API_KEY)")
	}
	if p.config.Model == "" {
		return fmt.Errorf("openrouter: model is required")
	}

	u, err := url.Parse(p.config.BaseURL)
	if err != nil {
		return fmt.Errorf("openrouter: invalid base_url: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("openrouter: base_url %q has no host", p.config.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("openrouter: base_url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

// Complete sends a non-streaming completion request to OpenRouter.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	p.mu.RLock()
	model := p.model
	p.mu.RUnlock()

	resp, err := p.client.CreateChatCompletion(ctx, convertRequest(req, model))
	if err != nil {
		return provider.CompletionResponse{}, classifyError(err)
	}
	return convertResponse(resp), nil
}

// Stream sends a streaming completion request to OpenRouter. Connection
// errors are returned directly. Mid-stream errors are delivered via
// StreamChunk.Err on the returned channel.
func (p *Provider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	p.mu.RLock()
	model := p.model
	p.mu.RUnlock()

	sdkReq := convertRequest(req, model)
	sdkReq.Stream = true
	sdkReq.StreamOptions = &sdkopenai.StreamOptions{IncludeUsage: true}

	stream, err := p.streamClient.CreateChatCompletionStream(ctx, sdkReq)
	if err != nil {
		return nil, classifyError(err)
	}

	ch := make(chan provider.StreamChunk, 8)
	go pumpStream(ctx, stream, ch)
	return ch, nil
}

// ContextWindowSize returns the context window size for the active model.
func (p *Provider) ContextWindowSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.contextWindow
}

// ModelName returns the resolved model identifier.
func (p *Provider) ModelName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// SetModel implements provider.ModelSwitcher. Unlisted models fall back to
// the default context window, so any non-empty model is accepted.
func (p *Provider) SetModel(model string) error {
	if model == "" {
		return fmt.Errorf("openrouter: model must not be empty")
	}
	resolved := resolvedModel(model)

	p.mu.Lock()
	p.model = resolved
	p.contextWindow = p.config.contextWindowFor(resolved)
	p.mu.Unlock()
	return nil
}

// HealthCheck performs an active health probe by sending a minimal
// completion request (max_tokens=1). OpenRouter's model listing does not
// require authentication, so only a real completion verifies the key.
func (p *Provider) HealthCheck(ctx context.Context) error {
	req := provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleUser, Content: "ping"},
		},
		MaxTokens: 1,
	}
	_, err := p.Complete(ctx, req)
	return err
}
