package openrouter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/internal/provider"
	sdkopenai "github.com/sashabaranov/go-openai"
)

// errAuth is a non-retryable authentication error.
var errAuth = errors.New("openrouter: authentication failed")

// classifyError maps an SDK error to a provider sentinel so the chain can
// decide between failover and hard failure. Context errors pass through
// unchanged.
//
// OpenRouter relays upstream provider failures as in-stream error objects,
// which surface as API errors without an HTTP status. Those are classified
// by message since the status is all that is missing.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	status, msg, ok := statusOf(err)
	if !ok {
		// The request never completed: DNS, dial, TLS, or a torn connection.
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}

	if status == 0 {
		return classifyStreamError(msg)
	}

	switch {
	case status == 429:
		return fmt.Errorf("openrouter: %s: %w", msg, provider.ErrRateLimit)
	case status == 401 || status == 403:
		return fmt.Errorf("%w: %s", errAuth, msg)
	case status == 400 && isContextLengthError(msg):
		return fmt.Errorf("openrouter: %s: %w", msg, provider.ErrContextLength)
	case status == 400:
		return fmt.Errorf("openrouter: %s", msg)
	case status >= 500:
		return fmt.Errorf("openrouter: %s: %w", msg, provider.ErrProviderDown)
	default:
		return fmt.Errorf("openrouter: HTTP %d: %s", status, msg)
	}
}

// classifyStreamError maps a mid-stream error message to a sentinel. The
// default is ErrProviderDown: an upstream that errors mid-generation is a
// failover candidate.
func classifyStreamError(msg string) error {
	if msg == "" {
		msg = "unknown error"
	}
	sentinel := provider.ErrProviderDown
	switch {
	case strings.Contains(strings.ToLower(msg), "rate limit"):
		sentinel = provider.ErrRateLimit
	case isContextLengthError(msg):
		sentinel = provider.ErrContextLength
	}
	return fmt.Errorf("openrouter: %s: %w", msg, sentinel)
}

// statusOf extracts the HTTP status and message from the SDK's two error
// shapes. In-stream errors carry a zero status.
func statusOf(err error) (status int, msg string, ok bool) {
	var apiErr *sdkopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message, true
	}
	var reqErr *sdkopenai.RequestError
	if errors.As(err, &reqErr) {
		msg := ""
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return reqErr.HTTPStatusCode, msg, true
	}
	return 0, "", false
}

// isContextLengthError reports whether an error message describes a context
// window overflow. Upstream providers phrase this differently.
func isContextLengthError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, probe := range []string{"context length", "context_length", "maximum context", "token limit"} {
		if strings.Contains(lower, probe) {
			return true
		}
	}
	return false
}
