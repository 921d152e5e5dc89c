package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/parleyhq/parley/internal/provider"
	sdkopenai "github.com/sashabaranov/go-openai"
)

// maxToolCallArgs caps the accumulated argument bytes of one streamed
// tool call so a broken upstream cannot grow the buffer without bound.
const maxToolCallArgs = 1 << 20

// toolCallDelta collects one call's fragments while the stream is open.
type toolCallDelta struct {
	id   string
	name string
	args strings.Builder
}

// toolCallAccumulator reassembles fragmented tool calls by stream index.
type toolCallAccumulator map[int]*toolCallDelta

// add folds one SDK delta into the accumulator.
func (a toolCallAccumulator) add(tc sdkopenai.ToolCall) error {
	idx := 0
	if tc.Index != nil {
		idx = *tc.Index
	}
	delta := a[idx]
	if delta == nil {
		delta = &toolCallDelta{}
		a[idx] = delta
	}
	if tc.ID != "" {
		delta.id = tc.ID
	}
	if tc.Function.Name != "" {
		delta.name = tc.Function.Name
	}
	if args := tc.Function.Arguments; args != "" {
		if delta.args.Len()+len(args) > maxToolCallArgs {
			return fmt.Errorf("openai: tool call arguments exceeded %d bytes", maxToolCallArgs)
		}
		delta.args.WriteString(args)
	}
	return nil
}

// flush empties the accumulator into ToolCalls ordered by stream index.
func (a toolCallAccumulator) flush() []provider.ToolCall {
	out := make([]provider.ToolCall, 0, len(a))
	for _, idx := range slices.Sorted(maps.Keys(a)) {
		delta := a[idx]
		out = append(out, provider.ToolCall{
			ID:        delta.id,
			Name:      delta.name,
			Arguments: json.RawMessage(delta.args.String()),
		})
		delete(a, idx)
	}
	return out
}

// pumpStream forwards SDK stream chunks on ch until the stream ends or
// ctx is cancelled, then closes both.
//
// Tool calls arrive fragmented and are reassembled here. They flush
// with the finish chunk, and once more at EOF for upstreams that end
// the stream without one. With stream_options.include_usage set, the
// token totals arrive last in a chunk that has no choices.
func pumpStream(ctx context.Context, stream *sdkopenai.ChatCompletionStream, ch chan<- provider.StreamChunk) {
	defer close(ch)
	defer func() { _ = stream.Close() }()

	emit := func(chunk provider.StreamChunk) bool {
		select {
		case ch <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	calls := toolCallAccumulator{}
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			if len(calls) > 0 {
				emit(provider.StreamChunk{ToolCalls: calls.flush()})
			}
			return
		}
		if err != nil {
			if cause := ctx.Err(); cause != nil {
				emit(provider.StreamChunk{Err: cause})
			} else {
				emit(provider.StreamChunk{Err: classifyError(err)})
			}
			return
		}

		usage := usageOf(resp.Usage)
		if len(resp.Choices) == 0 {
			// The include_usage chunk carries totals and nothing else.
			if usage != nil && !emit(provider.StreamChunk{Usage: usage}) {
				return
			}
			continue
		}

		choice := resp.Choices[0]
		for _, tc := range choice.Delta.ToolCalls {
			if err := calls.add(tc); err != nil {
				emit(provider.StreamChunk{Err: err})
				return
			}
		}

		// One chunk per delta. A delta may pair content with the finish
		// reason; both travel together rather than the finish being lost.
		chunk := provider.StreamChunk{
			Content: choice.Delta.Content,
			Usage:   usage,
		}
		if choice.FinishReason != "" {
			chunk.FinishReason = convertFinishReason(choice.FinishReason)
			if len(calls) > 0 {
				chunk.ToolCalls = calls.flush()
			}
		}
		if chunk.Content == "" && chunk.FinishReason == "" && chunk.Usage == nil {
			continue
		}
		if !emit(chunk) {
			return
		}
	}
}

// usageOf converts SDK usage totals, nil in chunks that carry none.
func usageOf(u *sdkopenai.Usage) *provider.TokenUsage {
	if u == nil {
		return nil
	}
	return &provider.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
