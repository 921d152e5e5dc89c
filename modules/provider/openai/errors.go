package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/internal/provider"
	sdkopenai "github.com/sashabaranov/go-openai"
)

// errAuth marks credential rejections, which no amount of retrying fixes.
var errAuth = errors.New("openai: authentication failed")

// classifyError maps a go-openai error to a provider sentinel so the chain
// can decide between failover and hard failure. Context errors pass through
// unchanged; unrecognized errors are wrapped with the package prefix.
func classifyError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}

	if status, msg, ok := statusOf(err); ok {
		switch {
		case status == 0:
			// In-stream error object; no status accompanies it.
			return fmt.Errorf("openai: %s: %w", msg, provider.ErrProviderDown)
		case status == 429:
			return fmt.Errorf("%w: %s", provider.ErrRateLimit, msg)
		case status == 401 || status == 403:
			return fmt.Errorf("%w: %s", errAuth, msg)
		case status == 400 && isContextLength(err, msg):
			return fmt.Errorf("%w: %s", provider.ErrContextLength, msg)
		case status >= 500:
			return fmt.Errorf("%w: %s", provider.ErrProviderDown, msg)
		default:
			return fmt.Errorf("openai: HTTP %d: %s", status, msg)
		}
	}

	// No HTTP status means the request never completed: DNS, dial, TLS,
	// or a torn connection. All are worth a failover.
	return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
}

// statusOf extracts the HTTP status and message from the SDK's two error
// shapes. APIError carries a parsed error body; RequestError covers
// responses the SDK could not decode.
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

// isContextLength reports whether a 400 response is the context-window
// rejection. The API tags it with code context_length_exceeded; the message
// substring covers proxies that rewrite the code.
func isContextLength(err error, msg string) bool {
	var apiErr *sdkopenai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
			return true
		}
	}
	return strings.Contains(strings.ToLower(msg), "context length")
}
