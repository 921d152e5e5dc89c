package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/parleyhq/parley/internal/provider"
)

// mapError folds an SDK error into the provider sentinels the failover
// chain keys on. Anything that is not an API error passes through.
func mapError(err error) error {
	// Context errors pass through untouched so the chain treats them as
	// non-retryable instead of counting them against provider health.
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *sdkanthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	return classifyAPIError(apiErr, err)
}

func classifyAPIError(apiErr *sdkanthropic.Error, err error) error {
	status := apiErr.StatusCode
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", provider.ErrRateLimit, apiErr.Error())
	case isDownStatus(status):
		return fmt.Errorf("%w: %s", provider.ErrProviderDown, apiErr.Error())
	case status == http.StatusBadRequest && isContextLengthError(apiErr):
		return fmt.Errorf("%w: %s", provider.ErrContextLength, apiErr.Error())
	case status == http.StatusBadRequest:
		return fmt.Errorf("anthropic bad request: %w", err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("anthropic auth error (HTTP %d): %w", status, err)
	default:
		return fmt.Errorf("anthropic error (HTTP %d): %w", status, err)
	}
}

// isDownStatus reports whether the status signals service trouble worth
// a failover. 529 is Anthropic's overloaded_error, reported outside the
// usual 5xx family.
func isDownStatus(status int) bool {
	switch status {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, 529:
		return true
	}
	return false
}

// contextLimitPhrases are the fragments Anthropic uses in messages
// about an exceeded context window.
var contextLimitPhrases = []string{"context length", "too many tokens", "token limit"}

func mentionsContextLimit(s string) bool {
	return slices.ContainsFunc(contextLimitPhrases, func(phrase string) bool {
		return strings.Contains(s, phrase)
	})
}

// isContextLengthError reports whether a 400 is specifically about the
// model's context window. The structured error type is checked first;
// raw substring matching only covers malformed bodies.
func isContextLengthError(apiErr *sdkanthropic.Error) bool {
	raw := apiErr.RawJSON()

	var body struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err == nil {
		return body.Error.Type == "invalid_request_error" && mentionsContextLimit(body.Error.Message)
	}
	return mentionsContextLimit(raw)
}
