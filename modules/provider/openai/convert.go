package openai

import (
	"encoding/json"

	"github.com/parleyhq/parley/internal/provider"
	sdkopenai "github.com/sashabaranov/go-openai"
)

// convertRequest builds a chat completion request from the provider-neutral
// form. Config defaults apply where the request leaves a knob unset.
func convertRequest(req provider.CompletionRequest, cfg *Config, model string) sdkopenai.ChatCompletionRequest {
	out := sdkopenai.ChatCompletionRequest{
		Model:    model,
		Messages: convertMessages(req.Messages),
	}

	out.MaxTokens = cfg.MaxTokens
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}

	switch {
	case req.Temperature != nil:
		out.Temperature = float32(*req.Temperature)
	case cfg.Temperature != nil:
		out.Temperature = float32(*cfg.Temperature)
	}
	switch {
	case req.TopP != nil:
		out.TopP = float32(*req.TopP)
	case cfg.TopP != nil:
		out.TopP = float32(*cfg.TopP)
	}

	if len(req.Stop) > 0 {
		out.Stop = req.Stop
	}
	if len(req.Tools) > 0 {
		out.Tools = convertTools(req.Tools)
	}

	return out
}

// convertMessages maps the neutral message list onto the chat API's shape.
// Multi-part user content becomes MultiContent; assistant tool calls and
// tool-result messages keep their call IDs so the API can pair them.
func convertMessages(msgs []provider.LLMMessage) []sdkopenai.ChatCompletionMessage {
	out := make([]sdkopenai.ChatCompletionMessage, 0, len(msgs))

	for _, msg := range msgs {
		switch msg.Role {
		case provider.MessageRoleSystem:
			out = append(out, sdkopenai.ChatCompletionMessage{
				Role:    sdkopenai.ChatMessageRoleSystem,
				Content: msg.Content,
			})

		case provider.MessageRoleUser:
			m := sdkopenai.ChatCompletionMessage{
				Role: sdkopenai.ChatMessageRoleUser,
				Name: msg.Name,
			}
			if len(msg.ContentParts) > 0 {
				m.MultiContent = convertParts(msg.ContentParts)
			} else {
				m.Content = msg.Content
			}
			out = append(out, m)

		case provider.MessageRoleAssistant:
			m := sdkopenai.ChatCompletionMessage{
				Role:    sdkopenai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, sdkopenai.ToolCall{
					ID:   tc.ID,
					Type: sdkopenai.ToolTypeFunction,
					Function: sdkopenai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out = append(out, m)

		case provider.MessageRoleTool:
			out = append(out, sdkopenai.ChatCompletionMessage{
				Role:       sdkopenai.ChatMessageRoleTool,
				Content:    msg.Content,
				Name:       msg.Name,
				ToolCallID: msg.ToolID,
			})
		}
	}

	return out
}

// convertParts maps neutral content parts to chat message parts. Unknown
// part types are dropped rather than sent as empty blocks.
func convertParts(parts []provider.ContentPart) []sdkopenai.ChatMessagePart {
	out := make([]sdkopenai.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case provider.ContentPartText:
			out = append(out, sdkopenai.ChatMessagePart{
				Type: sdkopenai.ChatMessagePartTypeText,
				Text: p.Text,
			})
		case provider.ContentPartImageURL:
			out = append(out, sdkopenai.ChatMessagePart{
				Type: sdkopenai.ChatMessagePartTypeImageURL,
				ImageURL: &sdkopenai.ChatMessageImageURL{
					URL:    p.ImageURL,
					Detail: sdkopenai.ImageURLDetailAuto,
				},
			})
		}
	}
	return out
}

// convertTools maps tool definitions to function declarations. A schema that
// fails to parse degrades to an empty object schema so one bad tool does not
// sink the whole request.
func convertTools(tools []provider.ToolDefinition) []sdkopenai.Tool {
	out := make([]sdkopenai.Tool, len(tools))
	for i, t := range tools {
		var params map[string]any
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &params); err != nil {
				params = nil
			}
		}
		if params == nil {
			params = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		out[i] = sdkopenai.Tool{
			Type: sdkopenai.ToolTypeFunction,
			Function: &sdkopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		}
	}
	return out
}

// convertResponse maps a non-streaming completion back to the neutral form.
func convertResponse(resp sdkopenai.ChatCompletionResponse) provider.CompletionResponse {
	out := provider.CompletionResponse{
		FinishReason: provider.FinishReasonStop,
		Usage: provider.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}

	choice := resp.Choices[0]
	out.Content = choice.Message.Content
	out.FinishReason = convertFinishReason(choice.FinishReason)

	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, provider.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}

	return out
}

// convertFinishReason maps the chat API's finish reason to the neutral one.
func convertFinishReason(r sdkopenai.FinishReason) provider.FinishReason {
	switch r {
	case sdkopenai.FinishReasonStop:
		return provider.FinishReasonStop
	case sdkopenai.FinishReasonLength:
		return provider.FinishReasonLength
	case sdkopenai.FinishReasonToolCalls, sdkopenai.FinishReasonFunctionCall:
		return provider.FinishReasonToolUse
	case sdkopenai.FinishReasonContentFilter:
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReasonStop
	}
}
