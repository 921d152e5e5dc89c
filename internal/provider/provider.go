// Package provider defines the model-call surface: the Provider
// interface, its request and response types, and a role-routed failover
// chain with per-entry health accounting and auth key rotation.
package provider

import "context"

// Provider is one upstream model endpoint. Implementations live under
// modules/provider and usually double as core.Module for lifecycle
// wiring.
type Provider interface {
	// Complete runs one blocking completion.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream runs one completion as a chunk stream. Errors establishing
	// the stream return directly; errors mid-stream arrive on
	// StreamChunk.Err.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// ContextWindowSize is the model's context budget in tokens.
	ContextWindowSize() int

	// ModelName identifies the underlying model.
	ModelName() string
}

// HealthChecker marks a provider that supports active probing. The
// chain probes unavailable entries through HealthCheck to decide when
// they may serve again.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ModelSwitcher is an optional interface for providers that can switch
// their active model at runtime. The switch applies to this and later
// requests for the remainder of the process.
type ModelSwitcher interface {
	SetModel(model string) error
}
