package anthropic

import (
	"encoding/json"
	"log/slog"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/parleyhq/parley/internal/provider"
)

// convertRequest maps a neutral CompletionRequest onto Anthropic SDK
// parameters. Leading system messages move into the dedicated System field.
func convertRequest(req provider.CompletionRequest, cfg *Config, model string, logger *slog.Logger) sdkanthropic.MessageNewParams {
	system, rest := splitSystemPrompt(req.Messages)

	maxTokens := cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	params := sdkanthropic.MessageNewParams{
		Model:         sdkanthropic.Model(model),
		System:        system,
		Messages:      convertMessages(rest, logger),
		MaxTokens:     int64(maxTokens),
		StopSequences: req.Stop,
	}
	if t := req.Temperature; t != nil {
		params.Temperature = sdkanthropic.Float(*t)
	}
	if req.TopP != nil {
		params.TopP = sdkanthropic.Float(*req.TopP)
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params
}

// splitSystemPrompt peels off the run of system messages at the head of the
// conversation and returns them as System blocks plus the remainder.
func splitSystemPrompt(msgs []provider.LLMMessage) ([]sdkanthropic.TextBlockParam, []provider.LLMMessage) {
	n := 0
	for n < len(msgs) && msgs[n].Role == provider.MessageRoleSystem {
		n++
	}
	if n == 0 {
		return nil, msgs
	}

	system := make([]sdkanthropic.TextBlockParam, 0, n)
	for _, m := range msgs[:n] {
		system = append(system, sdkanthropic.TextBlockParam{Text: m.Content})
	}
	return system, msgs[n:]
}

// convertMessages maps neutral messages onto Anthropic SDK message params.
// The API wants every tool result for a turn inside one user message, so
// consecutive tool results accumulate and flush as a unit. System messages
// past the head of the conversation have no wire representation and are
// dropped with a warning.
func convertMessages(msgs []provider.LLMMessage, logger *slog.Logger) []sdkanthropic.MessageParam {
	var out []sdkanthropic.MessageParam
	var results []sdkanthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(results) == 0 {
			return
		}
		out = append(out, sdkanthropic.MessageParam{
			Role:    sdkanthropic.MessageParamRoleUser,
			Content: results,
		})
		results = nil
	}

	for i, msg := range msgs {
		switch msg.Role {
		case provider.MessageRoleTool:
			results = append(results, sdkanthropic.NewToolResultBlock(msg.ToolID, msg.Content, msg.IsError))

		case provider.MessageRoleAssistant:
			flushResults()
			out = append(out, convertAssistantMessage(msg))

		case provider.MessageRoleUser:
			flushResults()
			out = append(out, convertUserMessage(msg))

		case provider.MessageRoleSystem:
			flushResults()
			if logger != nil {
				logger.Warn("dropping system message, only leading ones reach the API", "index", i)
			}

		default:
			flushResults()
		}
	}
	flushResults()

	return out
}

// convertUserMessage builds a user message. Multi-part content becomes mixed
// text and image blocks; plain content becomes a single text block.
func convertUserMessage(msg provider.LLMMessage) sdkanthropic.MessageParam {
	if len(msg.ContentParts) == 0 {
		return sdkanthropic.NewUserMessage(sdkanthropic.NewTextBlock(msg.Content))
	}

	var blocks []sdkanthropic.ContentBlockParamUnion
	for _, part := range msg.ContentParts {
		switch part.Type {
		case provider.ContentPartText:
			if part.Text != "" {
				blocks = append(blocks, sdkanthropic.NewTextBlock(part.Text))
			}
		case provider.ContentPartImageURL:
			if part.ImageURL != "" {
				blocks = append(blocks, imageBlock(part.ImageURL))
			}
		}
	}
	if len(blocks) == 0 {
		blocks = append(blocks, sdkanthropic.NewTextBlock(msg.Content))
	}

	return sdkanthropic.NewUserMessage(blocks...)
}

func imageBlock(url string) sdkanthropic.ContentBlockParamUnion {
	return sdkanthropic.ContentBlockParamUnion{
		OfImage: &sdkanthropic.ImageBlockParam{
			Source: sdkanthropic.ImageBlockParamSourceUnion{
				OfURL: &sdkanthropic.URLImageSourceParam{URL: url},
			},
		},
	}
}

// convertAssistantMessage builds an assistant message with its text and any
// tool-use blocks.
func convertAssistantMessage(msg provider.LLMMessage) sdkanthropic.MessageParam {
	var blocks []sdkanthropic.ContentBlockParamUnion
	if msg.Content != "" {
		blocks = append(blocks, sdkanthropic.NewTextBlock(msg.Content))
	}
	for _, tc := range msg.ToolCalls {
		blocks = append(blocks, toolUseBlock(tc))
	}
	return sdkanthropic.NewAssistantMessage(blocks...)
}

// toolUseBlock passes the raw JSON arguments through untouched;
// json.RawMessage marshals itself, so the SDK will not double-encode them.
func toolUseBlock(tc provider.ToolCall) sdkanthropic.ContentBlockParamUnion {
	input := any(tc.Arguments)
	if len(tc.Arguments) == 0 {
		input = json.RawMessage("{}")
	}
	return sdkanthropic.NewToolUseBlock(tc.ID, input, tc.Name)
}

// convertTools maps neutral tool definitions onto Anthropic SDK tool params.
func convertTools(defs []provider.ToolDefinition) []sdkanthropic.ToolUnionParam {
	out := make([]sdkanthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		t := sdkanthropic.ToolParam{Name: def.Name}
		if def.Description != "" {
			t.Description = sdkanthropic.String(def.Description)
		}
		if len(def.Parameters) > 0 {
			t.InputSchema = convertInputSchema(def.Parameters)
		}
		out = append(out, sdkanthropic.ToolUnionParam{OfTool: &t})
	}
	return out
}

// convertInputSchema splits a raw JSON Schema into the SDK's
// ToolInputSchemaParam. Everything beyond "properties" and "required"
// ($defs, oneOf, additionalProperties, enum and the rest) rides along in
// ExtraFields so nothing from the schema is lost.
func convertInputSchema(raw json.RawMessage) sdkanthropic.ToolInputSchemaParam {
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return sdkanthropic.ToolInputSchemaParam{}
	}

	var param sdkanthropic.ToolInputSchemaParam
	param.Properties = schema["properties"]

	if names, ok := schema["required"].([]any); ok {
		req := make([]string, 0, len(names))
		for _, v := range names {
			if s, ok := v.(string); ok {
				req = append(req, s)
			}
		}
		param.Required = req
	}

	delete(schema, "properties")
	delete(schema, "required")
	// The SDK fills in "type": "object" on its own.
	delete(schema, "type")

	if len(schema) > 0 {
		param.ExtraFields = schema
	}
	return param
}

// convertResponse maps an Anthropic SDK Message back onto a neutral
// CompletionResponse. Multiple text blocks join with newlines.
func convertResponse(msg *sdkanthropic.Message) provider.CompletionResponse {
	var text strings.Builder
	var calls []provider.ToolCall

	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case sdkanthropic.TextBlock:
			if text.Len() > 0 {
				text.WriteByte('\n')
			}
			text.WriteString(b.Text)
		case sdkanthropic.ToolUseBlock:
			calls = append(calls, provider.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: b.Input,
			})
		}
	}

	in, out := msg.Usage.InputTokens, msg.Usage.OutputTokens
	return provider.CompletionResponse{
		Content:      text.String(),
		ToolCalls:    calls,
		FinishReason: convertStopReason(msg.StopReason),
		Usage: provider.TokenUsage{
			PromptTokens:     int(in),
			CompletionTokens: int(out),
			TotalTokens:      int(in + out),
		},
	}
}

// convertStopReason maps an Anthropic stop reason to a neutral FinishReason.
// Unknown reasons read as a normal stop.
func convertStopReason(reason sdkanthropic.StopReason) provider.FinishReason {
	switch reason {
	case sdkanthropic.StopReasonToolUse:
		return provider.FinishReasonToolUse
	case sdkanthropic.StopReasonMaxTokens:
		return provider.FinishReasonLength
	case sdkanthropic.StopReasonRefusal:
		return provider.FinishReasonFiltering
	case sdkanthropic.StopReasonEndTurn, sdkanthropic.StopReasonStopSequence:
		return provider.FinishReasonStop
	default:
		return provider.FinishReasonStop
	}
}
