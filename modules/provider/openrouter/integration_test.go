package openrouter

// These tests exercise the provisioned SDK client against a canned
// OpenRouter endpoint: request encoding, stream decoding, attribution
// headers, and error mapping, all without network access.

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/provider"
	sdkopenai "github.com/sashabaranov/go-openai"
)

// provisionAgainst builds an OpenRouter provider pointed at a stub server,
// running the real Provision path so the SDK client and the attribution
// transport are the ones production uses.
func provisionAgainst(t *testing.T, handler http.HandlerFunc, mutate ...func(*Config)) *Provider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := &Provider{config: Config{
		APIKey:  "sk-or-test",
		Model:   "openai/gpt-4o",
		BaseURL: srv.URL,
		Timeout: "10s",
	}}
	for _, m := range mutate {
		m(&p.config)
	}
	if err := p.Provision(core.NewAppContext(nil, t.TempDir(), t.TempDir())); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	return p
}

func oneUserMessage(content string) provider.CompletionRequest {
	return provider.CompletionRequest{
		Messages: []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: content}},
	}
}

// replyWith answers every request with a single assistant message and the
// given usage.
func replyWith(content string, usage sdkopenai.Usage) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sdkopenai.ChatCompletionResponse{
			Choices: []sdkopenai.ChatCompletionChoice{{
				Message:      sdkopenai.ChatCompletionMessage{Role: "assistant", Content: content},
				FinishReason: sdkopenai.FinishReasonStop,
			}},
			Usage: usage,
		})
	}
}

// failWith answers every request with an error status and body.
func failWith(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}
}

// streamOf emits the given SSE payloads in order. Entries starting with
// ":" go out verbatim as comment lines, the keepalive form OpenRouter
// uses; everything else becomes a data line.
func streamOf(payloads ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range payloads {
			if strings.HasPrefix(p, ":") {
				fmt.Fprintf(w, "%s\n\n", p)
			} else {
				fmt.Fprintf(w, "data: %s\n\n", p)
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

// drain consumes a stream, returning the concatenated content, the last
// chunk delivered, and the first error seen.
func drain(ch <-chan provider.StreamChunk) (content string, last provider.StreamChunk, err error) {
	for chunk := range ch {
		if chunk.Err != nil && err == nil {
			err = chunk.Err
		}
		content += chunk.Content
		last = chunk
	}
	return content, last, err
}

func TestCompleteRoundTrip(t *testing.T) {
	t.Parallel()

	var sent sdkopenai.ChatCompletionRequest
	p := provisionAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		replyWith("Hello from test!", sdkopenai.Usage{PromptTokens: 5, CompletionTokens: 4, TotalTokens: 9})(w, r)
	})

	result, err := p.Complete(t.Context(), oneUserMessage("Hi"))
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if sent.Model != "openai/gpt-4o" {
		t.Errorf("model sent = %q", sent.Model)
	}
	if result.Content != "Hello from test!" {
		t.Errorf("Content = %q, want %q", result.Content, "Hello from test!")
	}
	if result.FinishReason != provider.FinishReasonStop {
		t.Errorf("FinishReason = %q, want stop", result.FinishReason)
	}
	if result.Usage.TotalTokens != 9 {
		t.Errorf("TotalTokens = %d, want 9", result.Usage.TotalTokens)
	}
}

func TestCompleteToolCalls(t *testing.T) {
	t.Parallel()

	p := provisionAgainst(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sdkopenai.ChatCompletionResponse{
			Choices: []sdkopenai.ChatCompletionChoice{{
				Message: sdkopenai.ChatCompletionMessage{
					Role: "assistant",
					ToolCalls: []sdkopenai.ToolCall{{
						ID:   "call_abc",
						Type: sdkopenai.ToolTypeFunction,
						Function: sdkopenai.FunctionCall{
							Name:      "get_weather",
							Arguments: `{"city":"Paris"}`,
						},
					}},
				},
				FinishReason: sdkopenai.FinishReasonToolCalls,
			}},
		})
	})

	req := oneUserMessage("What's the weather?")
	req.Tools = []provider.ToolDefinition{
		{Name: "get_weather", Description: "Get weather", Parameters: json.RawMessage(`{"type":"object"}`)},
	}

	result, err := p.Complete(t.Context(), req)
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if got := result.FinishReason; got != provider.FinishReasonToolUse {
		t.Errorf("FinishReason = %q, want %q", got, provider.FinishReasonToolUse)
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(result.ToolCalls))
	}
	if tc := result.ToolCalls[0]; tc.ID != "call_abc" || tc.Name != "get_weather" {
		t.Errorf("ToolCall = %q/%q", tc.ID, tc.Name)
	}
}

func TestCompleteErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		wantIs error // nil: no sentinel may match
	}{
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"rate limit exceeded"}}`,
			wantIs: provider.ErrRateLimit,
		},
		{
			name:   "bad gateway",
			status: http.StatusBadGateway,
			body:   `{"error":{"message":"bad gateway"}}`,
			wantIs: provider.ErrProviderDown,
		},
		{
			name:   "context overflow",
			status: http.StatusBadRequest,
			body:   `{"error":{"message":"context length exceeded"}}`,
			wantIs: provider.ErrContextLength,
		},
		{
			name:   "auth failure",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"invalid api key"}}`,
			wantIs: errAuth,
		},
		{
			name:   "generic bad request",
			status: http.StatusBadRequest,
			body:   `{"error":{"message":"invalid model"}}`,
			wantIs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := provisionAgainst(t, failWith(tt.status, tt.body))
			_, err := p.Complete(t.Context(), oneUserMessage("Hi"))
			if err == nil {
				t.Fatal("Complete() succeeded against a failing server")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("error = %v, want %v", err, tt.wantIs)
			}

			// The chain keys failover on these sentinels, so an error must
			// never wrap one it was not mapped to. Auth failures and
			// malformed requests stay unclassified.
			for _, sentinel := range []error{provider.ErrRateLimit, provider.ErrProviderDown, provider.ErrContextLength} {
				if sentinel != tt.wantIs && errors.Is(err, sentinel) {
					t.Errorf("error %v also wraps %v", err, sentinel)
				}
			}
		})
	}
}

func TestStreamAssemblesContent(t *testing.T) {
	t.Parallel()

	p := provisionAgainst(t, streamOf(
		`{"choices":[{"delta":{"content":"Hello"},"finish_reason":""}]}`,
		`{"choices":[{"delta":{"content":" world"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
		"[DONE]",
	))

	ch, err := p.Stream(t.Context(), oneUserMessage("Hi"))
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	content, last, streamErr := drain(ch)
	if streamErr != nil {
		t.Fatalf("stream error: %v", streamErr)
	}
	if content != "Hello world" {
		t.Errorf("content = %q", content)
	}
	if last.FinishReason != provider.FinishReasonStop {
		t.Errorf("FinishReason = %q", last.FinishReason)
	}
	if last.Usage == nil || last.Usage.TotalTokens != 5 {
		t.Errorf("Usage = %+v, want 5 total tokens on the final chunk", last.Usage)
	}
}

func TestStreamRequestRejected(t *testing.T) {
	t.Parallel()

	p := provisionAgainst(t, failWith(http.StatusTooManyRequests, `{"error":{"message":"rate limit"}}`))

	_, err := p.Stream(t.Context(), oneUserMessage("Hi"))
	if !errors.Is(err, provider.ErrRateLimit) {
		t.Errorf("Stream() error = %v, want ErrRateLimit", err)
	}
}

func TestStreamMidStreamError(t *testing.T) {
	t.Parallel()

	// OpenRouter relays upstream failures as in-band error objects after
	// the stream has started.
	p := provisionAgainst(t, streamOf(
		`{"choices":[{"delta":{"content":"partial"},"finish_reason":""}]}`,
		`{"error":{"message":"upstream rate limit exceeded","code":429}}`,
	))

	ch, err := p.Stream(t.Context(), oneUserMessage("Hi"))
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	if _, _, streamErr := drain(ch); !errors.Is(streamErr, provider.ErrRateLimit) {
		t.Errorf("stream error = %v, want ErrRateLimit", streamErr)
	}
}

func TestStreamAccumulatesToolCallFragments(t *testing.T) {
	t.Parallel()

	// The arguments arrive split across three deltas and must be
	// reassembled on the finish chunk.
	p := provisionAgainst(t, streamOf(
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"search","arguments":""}}]},"finish_reason":""}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"q\":"}}]},"finish_reason":""}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"test\"}"}}]},"finish_reason":"tool_calls"}]}`,
		"[DONE]",
	))

	ch, err := p.Stream(t.Context(), oneUserMessage("Search for test"))
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	_, last, streamErr := drain(ch)
	if streamErr != nil {
		t.Fatalf("stream error: %v", streamErr)
	}
	if last.FinishReason != provider.FinishReasonToolUse {
		t.Errorf("FinishReason = %q", last.FinishReason)
	}
	if len(last.ToolCalls) != 1 {
		t.Fatalf("ToolCalls count = %d", len(last.ToolCalls))
	}
	tc := last.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "search" {
		t.Errorf("ToolCall = %q/%q", tc.ID, tc.Name)
	}
	if got := string(tc.Arguments); got != `{"q":"test"}` {
		t.Errorf("Arguments = %s", got)
	}
}

func TestStreamSkipsKeepalives(t *testing.T) {
	t.Parallel()

	p := provisionAgainst(t, streamOf(
		": OPENROUTER PROCESSING",
		": OPENROUTER PROCESSING",
		`{"choices":[{"delta":{"content":"ok"},"finish_reason":"stop"}]}`,
		"[DONE]",
	))

	ch, err := p.Stream(t.Context(), oneUserMessage("Hi"))
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	content, _, streamErr := drain(ch)
	if streamErr != nil {
		t.Fatalf("stream error: %v", streamErr)
	}
	if content != "ok" {
		t.Errorf("content = %q", content)
	}
}

func TestAutoModelExpansion(t *testing.T) {
	t.Parallel()

	var sent sdkopenai.ChatCompletionRequest
	p := provisionAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&sent)
		replyWith("auto", sdkopenai.Usage{})(w, r)
	}, func(c *Config) {
		c.Model = "auto"
	})

	if _, err := p.Complete(t.Context(), oneUserMessage("Hi")); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if sent.Model != "openrouter/auto" {
		t.Errorf("model sent = %q, want %q", sent.Model, "openrouter/auto")
	}
}

func TestHealthCheckProbes(t *testing.T) {
	t.Parallel()

	var called bool
	p := provisionAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		replyWith("p", sdkopenai.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2})(w, r)
	})

	if err := p.HealthCheck(t.Context()); err != nil {
		t.Fatalf("HealthCheck() error: %v", err)
	}
	if !called {
		t.Error("health check sent no request")
	}
}

func TestAttributionHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*Config)
		wantReferer string
		wantTitle   string
	}{
		{
			name: "configured headers attached",
			mutate: func(c *Config) {
				c.Referer = "https://example.com"
				c.Title = "MyBot"
			},
			wantReferer: "https://example.com",
			wantTitle:   "MyBot",
		},
		{
			name:   "unset headers stay absent",
			mutate: func(*Config) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var headers http.Header
			p := provisionAgainst(t, func(w http.ResponseWriter, r *http.Request) {
				headers = r.Header.Clone()
				replyWith("ok", sdkopenai.Usage{})(w, r)
			}, tt.mutate)

			if _, err := p.Complete(t.Context(), oneUserMessage("Hi")); err != nil {
				t.Fatalf("Complete() error: %v", err)
			}

			if got := headers.Get("HTTP-Referer"); got != tt.wantReferer {
				t.Errorf("HTTP-Referer = %q, want %q", got, tt.wantReferer)
			}
			if got := headers.Get("X-Title"); got != tt.wantTitle {
				t.Errorf("X-Title = %q, want %q", got, tt.wantTitle)
			}
			if got := headers.Get("Authorization"); got != "Bearer sk-or-test" {
				t.Errorf("Authorization = %q", got)
			}
		})
	}
}
