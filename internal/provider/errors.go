package provider

import "errors"

// Classified provider failures. Chain fallback and the HTTP error mappers
// under modules/provider decide behavior off these.
var (
	// ErrRateLimit marks a rate limit response from the upstream API.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrContextLength marks a request over the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrProviderDown marks a provider that is temporarily unreachable.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrAllProviders means every chain entry was tried and failed.
	ErrAllProviders = errors.New("all providers failed")

	// ErrNoProvider means no chain entry covers the requested role.
	ErrNoProvider = errors.New("no provider configured")
)

// IsRetryable reports whether err is transient, worth retrying on another
// provider or after a backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}

// IsRateLimit reports whether err is or wraps ErrRateLimit.
func IsRateLimit(err error) bool {
	return errors.Is(err, ErrRateLimit)
}
