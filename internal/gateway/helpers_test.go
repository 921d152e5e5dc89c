package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/parleyhq/parley/internal/provider"
)

// fakeProvider answers with its own name, or fails every call with
// failErr when set. That is enough to drive chain health transitions.
type fakeProvider struct {
	name string
	// failErr, when set, fails every entry point.
	failErr error
}

func (p *fakeProvider) ModelName() string      { return p.name }
func (p *fakeProvider) ContextWindowSize() int { return 4096 }

func (p *fakeProvider) Complete(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
	if p.failErr != nil {
		return provider.CompletionResponse{}, p.failErr
	}
	return provider.CompletionResponse{Content: p.name, FinishReason: provider.FinishReasonStop}, nil
}

func (p *fakeProvider) Stream(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	if p.failErr != nil {
		return nil, p.failErr
	}
	out := make(chan provider.StreamChunk, 1)
	out <- provider.StreamChunk{Content: p.name, FinishReason: provider.FinishReasonStop}
	close(out)
	return out, nil
}

func (p *fakeProvider) HealthCheck(context.Context) error { return p.failErr }

// newTestChain wraps provider.NewChain, failing the test on error.
func newTestChain(t *testing.T, entries []provider.ChainEntry) *provider.Chain {
	t.Helper()
	c, err := provider.NewChain(entries)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	return c
}

// primaryChain is the one-provider chain most handler tests need.
func primaryChain(t *testing.T, p *fakeProvider) *provider.Chain {
	t.Helper()
	return newTestChain(t, []provider.ChainEntry{
		{Name: p.name, Provider: p, Role: provider.RolePrimary},
	})
}

// getJSON runs one GET through h and decodes the JSON body into out.
// It returns the HTTP status code, so it only suits handlers that
// answer JSON on every path.
func getJSON(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))

	if err := json.NewDecoder(rr.Body).Decode(out); err != nil {
		t.Fatalf("decode %s body: %v", path, err)
	}
	return rr.Code
}
