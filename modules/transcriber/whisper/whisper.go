// Package whisper implements the transcriber.whisper module, converting
// voice-note audio to text through the OpenAI audio transcription API.
package whisper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/transcribe"
	sdkopenai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Transcriber{})
}

// Interface guards.
var (
	_ transcribe.Transcriber = (*Transcriber)(nil)
	_ core.Module            = (*Transcriber)(nil)
	_ core.Configurable      = (*Transcriber)(nil)
	_ core.Provisioner       = (*Transcriber)(nil)
	_ core.Validator         = (*Transcriber)(nil)
)

// Transcriber is the transcriber.whisper module.
type Transcriber struct {
	config Config
	logger *slog.Logger
	apiKey string
	client *sdkopenai.Client
}

// ModuleInfo implements core.Module.
func (t *Transcriber) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "transcriber.whisper",
		New: func() core.Module { return new(Transcriber) },
	}
}

// Configure implements core.Configurable.
func (t *Transcriber) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return err
	}
	t.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (t *Transcriber) Provision(ctx *core.AppContext) error {
	t.logger = ctx.Logger

	// Resolve API key: config takes precedence over environment variable.
	t.apiKey = t.config.APIKey
	if t.apiKey == "" {
		if envKey, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			t.apiKey = envKey
		}
	}

	// Hand the key to the credential store so logs redact it.
	if t.apiKey != "" {
		if svc, ok := ctx.Service("security.credentials"); ok {
			if store, ok := svc.(*security.CredentialStore); ok {
				store.Set("whisper_api_key", t.apiKey)
			}
		}
	}

	cfg := sdkopenai.DefaultConfig(t.apiKey)
	if t.config.BaseURL != "" {
		cfg.BaseURL = t.config.BaseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: t.config.parsedTimeout()}
	t.client = sdkopenai.NewClientWithConfig(cfg)

	ctx.RegisterService("transcriber.whisper", t)

	return nil
}

// Validate implements core.Validator.
func (t *Transcriber) Validate() error {
	if t.apiKey == "" {
		return fmt.Errorf("transcriber.whisper: api_key is required (config or OPENAI_API_KEY)")
	}
	if t.config.Model == "" {
		return fmt.Errorf("transcriber.whisper: model is required")
	}
	return t.config.validateTimeout()
}

// Transcribe implements transcribe.Transcriber. The filename hint selects
// the container format on the wire; the API rejects uploads without a
// recognized extension.
func (t *Transcriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if filename == "" {
		filename = "audio.ogg"
	}

	resp, err := t.client.CreateTranscription(ctx, sdkopenai.AudioRequest{
		Model:    t.config.Model,
		Reader:   audio,
		FilePath: filename,
		Language: t.config.Language,
	})
	if err != nil {
		return "", fmt.Errorf("transcriber.whisper: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if t.logger != nil {
		t.logger.Debug("voice note transcribed", "filename", filename, "chars", len(text))
	}
	return text, nil
}
