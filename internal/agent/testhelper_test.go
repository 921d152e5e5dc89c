package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/provider"
	"github.com/parleyhq/parley/internal/tool"
)

// scriptedProvider serves canned completions and streams in order. Calls
// past the end of the script fail.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []provider.CompletionResponse
	feeds   [][]provider.StreamChunk
	reply   int
	feed    int
}

func (s *scriptedProvider) Complete(_ context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reply >= len(s.replies) {
		return provider.CompletionResponse{}, fmt.Errorf("scripted provider: reply %d not scripted", s.reply)
	}
	r := s.replies[s.reply]
	s.reply++
	return r, nil
}

func (s *scriptedProvider) Stream(_ context.Context, _ provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feed >= len(s.feeds) {
		return nil, fmt.Errorf("scripted provider: stream %d not scripted", s.feed)
	}
	chunks := s.feeds[s.feed]
	s.feed++
	ch := make(chan provider.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (s *scriptedProvider) ContextWindowSize() int { return 128000 }
func (s *scriptedProvider) ModelName() string      { return "scripted-model" }

// fakeTool is a configurable tool.Tool: it can answer, fail, panic, or
// stall for a while first.
type fakeTool struct {
	name  string
	out   tool.Output
	fail  error
	boom  string
	sleep time.Duration
}

func (f *fakeTool) Name() string                    { return f.name }
func (f *fakeTool) Description() string             { return "fake tool" }
func (f *fakeTool) Schema() json.RawMessage         { return json.RawMessage(`{}`) }
func (f *fakeTool) Scopes() []tool.Scope            { return []tool.Scope{tool.ScopeReadOnly} }
func (f *fakeTool) DefaultAccess() tool.AccessLevel { return tool.AccessAllow }

func (f *fakeTool) Execute(_ context.Context, _ json.RawMessage, _ tool.ExecutionEnv) (tool.Output, error) {
	if f.sleep > 0 {
		time.Sleep(f.sleep)
	}
	if f.boom != "" {
		panic(f.boom)
	}
	return f.out, f.fail
}

// allowAllExecutor wraps reg in an executor whose DM policy permits
// everything.
func allowAllExecutor(reg *tool.Registry) *ToolExecutor {
	return NewToolExecutor(ToolExecutorConfig{
		Registry: reg,
		PolicyCfg: tool.PolicyConfig{
			DM: tool.Policy{Default: tool.AccessAllow},
		},
		PolicyCtx: tool.PolicyContextDM,
	})
}

// executorWith registers the given tools and wraps them in an allow-all
// executor.
func executorWith(tools ...*fakeTool) *ToolExecutor {
	reg := tool.NewRegistry()
	for _, ft := range tools {
		if err := reg.Register(ft); err != nil {
			panic(err)
		}
	}
	return allowAllExecutor(reg)
}

func callFor(id, name string) provider.ToolCall {
	return provider.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(`{}`)}
}

func asUser(text string) provider.LLMMessage {
	return provider.LLMMessage{Role: provider.MessageRoleUser, Content: text}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
