// Package providertest holds test doubles shared by the provider tests.
package providertest

import (
	"context"
	"sync/atomic"

	"github.com/parleyhq/parley/internal/provider"
)

// MockProvider is a func-field test double for provider.Provider. Call
// funcs left unset fall back to canned successes; the counters record
// how often each entry point ran. Safe for concurrent use.
type MockProvider struct {
	CompleteFunc func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	StreamFunc   func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)

	ContextWindowSizeFunc func() int
	ModelNameFunc         func() string
	HealthCheckFunc       func(ctx context.Context) error

	CompleteCalls atomic.Int64
	StreamCalls   atomic.Int64
	HealthCalls   atomic.Int64
}

// Interface guards.
var (
	_ provider.Provider      = (*MockProvider)(nil)
	_ provider.HealthChecker = (*MockProvider)(nil)
)

// Complete runs CompleteFunc, counting the call.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.CompleteCalls.Add(1)
	if m.CompleteFunc == nil {
		return provider.CompletionResponse{Content: "ok"}, nil
	}
	return m.CompleteFunc(ctx, req)
}

// Stream runs StreamFunc, counting the call. Unset, it yields a single
// chunk and closes.
func (m *MockProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	m.StreamCalls.Add(1)
	if m.StreamFunc == nil {
		ch := make(chan provider.StreamChunk, 1)
		ch <- provider.StreamChunk{Content: "ok"}
		close(ch)
		return ch, nil
	}
	return m.StreamFunc(ctx, req)
}

// HealthCheck runs HealthCheckFunc, counting the call. Unset, the
// provider reports healthy.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.HealthCalls.Add(1)
	if m.HealthCheckFunc == nil {
		return nil
	}
	return m.HealthCheckFunc(ctx)
}

func (m *MockProvider) ContextWindowSize() int {
	if m.ContextWindowSizeFunc == nil {
		return 8192
	}
	return m.ContextWindowSizeFunc()
}

func (m *MockProvider) ModelName() string {
	if m.ModelNameFunc == nil {
		return "mock"
	}
	return m.ModelNameFunc()
}
