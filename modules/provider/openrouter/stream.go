package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"slices"

	"github.com/parleyhq/parley/internal/provider"
	sdkopenai "github.com/sashabaranov/go-openai"
)

// toolCallAccumulator collects streamed fragments of a single tool call.
type toolCallAccumulator struct {
	id   string
	name string
	args string
}

// pumpStream reads chunks from the SDK stream and sends decoded chunks to ch,
// closing it when the stream ends. OpenRouter keepalive comments and the
// [DONE] sentinel are absorbed by the SDK; mid-stream error objects surface
// as Recv errors and are classified before delivery.
func pumpStream(ctx context.Context, stream *sdkopenai.ChatCompletionStream, ch chan<- provider.StreamChunk) {
	defer close(ch)
	defer func() { _ = stream.Close() }()

	// toolArgs accumulates streamed tool call arguments by index.
	var toolArgs map[int]*toolCallAccumulator

	deliver := func(sc provider.StreamChunk) bool {
		select {
		case ch <- sc:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			// Flush tool calls if the upstream never sent a finish chunk.
			if len(toolArgs) > 0 {
				deliver(provider.StreamChunk{ToolCalls: buildToolCalls(toolArgs)})
			}
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				deliver(provider.StreamChunk{Err: ctx.Err()})
				return
			}
			deliver(provider.StreamChunk{Err: classifyError(err)})
			return
		}

		var usage *provider.TokenUsage
		if resp.Usage != nil {
			usage = &provider.TokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}

		if len(resp.Choices) == 0 {
			if usage != nil && !deliver(provider.StreamChunk{Usage: usage}) {
				return
			}
			continue
		}

		choice := resp.Choices[0]
		sc := provider.StreamChunk{
			Content: choice.Delta.Content,
			Usage:   usage,
		}

		// Accumulate tool calls from deltas.
		for _, tc := range choice.Delta.ToolCalls {
			if toolArgs == nil {
				toolArgs = make(map[int]*toolCallAccumulator)
			}
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			acc, ok := toolArgs[idx]
			if !ok {
				acc = &toolCallAccumulator{}
				toolArgs[idx] = acc
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			acc.args += tc.Function.Arguments
		}

		// Emit accumulated tool calls on the finish chunk.
		if choice.FinishReason != "" {
			sc.FinishReason = convertFinishReason(choice.FinishReason)
			if toolArgs != nil {
				sc.ToolCalls = buildToolCalls(toolArgs)
				toolArgs = nil
			}
		}

		if sc.Content == "" && sc.FinishReason == "" && sc.Usage == nil && len(sc.ToolCalls) == 0 {
			continue
		}
		if !deliver(sc) {
			return
		}
	}
}

// buildToolCalls converts accumulated tool call fragments into provider.ToolCalls.
// Indexes are sorted to produce a deterministic order even when sparse.
func buildToolCalls(accs map[int]*toolCallAccumulator) []provider.ToolCall {
	keys := slices.Sorted(maps.Keys(accs))
	calls := make([]provider.ToolCall, 0, len(keys))
	for _, idx := range keys {
		acc := accs[idx]
		calls = append(calls, provider.ToolCall{
			ID:        acc.id,
			Name:      acc.name,
			Arguments: json.RawMessage(acc.args),
		})
	}
	return calls
}
