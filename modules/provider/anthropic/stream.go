package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/parleyhq/parley/internal/provider"
)

// maxOpenToolBlocks caps how many tool_use blocks may accumulate at once.
// A server that starts blocks without stopping them would otherwise grow
// the draft map without bound.
const maxOpenToolBlocks = 100

// streamBufferSize keeps the producer a few chunks ahead of the consumer.
const streamBufferSize = 16

// Stream sends a streaming completion request and returns a channel of
// StreamChunks that closes when the stream ends. The first SSE event is
// read before returning, so connection-time failures (auth, network, 4xx)
// come back as an error and the chain can fail over; anything after that
// arrives via StreamChunk.Err.
func (p *Provider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	params := convertRequest(req, &p.config, p.currentModel(), p.logger)

	stream := p.client.Messages.NewStreaming(ctx, params)

	if !stream.Next() {
		err := stream.Err()
		_ = stream.Close()
		if err != nil {
			return nil, mapError(err)
		}
		// Ended cleanly before producing anything.
		ch := make(chan provider.StreamChunk)
		close(ch)
		return ch, nil
	}
	first := stream.Current()

	ch := make(chan provider.StreamChunk, streamBufferSize)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()

		dec := streamDecoder{drafts: make(map[int64]*toolDraft)}
		dec.apply(ctx, first, ch)

		for stream.Next() {
			if ctx.Err() != nil {
				return
			}
			dec.apply(ctx, stream.Current(), ch)
		}

		if err := stream.Err(); err != nil {
			push(ctx, ch, provider.StreamChunk{Err: mapError(err)})
		}
	}()
	return ch, nil
}

// streamDecoder folds SSE events into provider chunks. Text deltas pass
// through as they arrive; a tool_use block's argument JSON accumulates in
// a draft until its content_block_stop, which emits the whole call.
type streamDecoder struct {
	inputTokens int64
	drafts      map[int64]*toolDraft
}

// toolDraft is a tool_use block under construction, keyed by block index.
type toolDraft struct {
	id, name string
	args     strings.Builder
}

func (d *streamDecoder) apply(ctx context.Context, event sdkanthropic.MessageStreamEventUnion, ch chan<- provider.StreamChunk) {
	switch ev := event.AsAny().(type) {
	case sdkanthropic.MessageStartEvent:
		d.inputTokens = ev.Message.Usage.InputTokens

	case sdkanthropic.ContentBlockStartEvent:
		if ev.ContentBlock.Type != "tool_use" {
			return
		}
		if len(d.drafts) >= maxOpenToolBlocks {
			push(ctx, ch, provider.StreamChunk{
				Err: fmt.Errorf("provider.anthropic: more than %d open tool blocks", maxOpenToolBlocks),
			})
			return
		}
		d.drafts[ev.Index] = &toolDraft{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}

	case sdkanthropic.ContentBlockDeltaEvent:
		switch delta := ev.Delta.AsAny().(type) {
		case sdkanthropic.TextDelta:
			push(ctx, ch, provider.StreamChunk{Content: delta.Text})
		case sdkanthropic.InputJSONDelta:
			if draft, ok := d.drafts[ev.Index]; ok {
				draft.args.WriteString(delta.PartialJSON)
			}
		}

	case sdkanthropic.ContentBlockStopEvent:
		d.finishBlock(ctx, ev.Index, ch)

	case sdkanthropic.MessageDeltaEvent:
		push(ctx, ch, provider.StreamChunk{
			FinishReason: convertStopReason(ev.Delta.StopReason),
			Usage: &provider.TokenUsage{
				PromptTokens:     int(d.inputTokens),
				CompletionTokens: int(ev.Usage.OutputTokens),
				TotalTokens:      int(d.inputTokens + ev.Usage.OutputTokens),
			},
		})
	}
}

// finishBlock emits the completed tool call for index, if one is open.
// Blocks that never received argument deltas emit an empty object, which
// is what the executor expects for no-argument tools.
func (d *streamDecoder) finishBlock(ctx context.Context, index int64, ch chan<- provider.StreamChunk) {
	draft, ok := d.drafts[index]
	if !ok {
		return
	}
	delete(d.drafts, index)

	args := json.RawMessage(draft.args.String())
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	push(ctx, ch, provider.StreamChunk{
		ToolCalls: []provider.ToolCall{{
			ID:        draft.id,
			Name:      draft.name,
			Arguments: args,
		}},
	})
}

// push sends one chunk unless the context is done first.
func push(ctx context.Context, ch chan<- provider.StreamChunk, chunk provider.StreamChunk) {
	select {
	case <-ctx.Done():
	case ch <- chunk:
	}
}
