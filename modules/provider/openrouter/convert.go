package openrouter

import (
	"encoding/json"

	"github.com/parleyhq/parley/internal/provider"
	sdkopenai "github.com/sashabaranov/go-openai"
)

// convertRequest builds a chat completion request for the OpenRouter API.
// Generation knobs pass through from the request untouched; OpenRouter fronts
// many models, so per-request tuning belongs to the caller, not this module.
func convertRequest(req provider.CompletionRequest, model string) sdkopenai.ChatCompletionRequest {
	out := sdkopenai.ChatCompletionRequest{
		Model:     model,
		Messages:  convertMessages(req.Messages),
		MaxTokens: req.MaxTokens,
	}

	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		out.TopP = float32(*req.TopP)
	}
	if len(req.Stop) > 0 {
		out.Stop = req.Stop
	}
	if len(req.Tools) > 0 {
		out.Tools = convertTools(req.Tools)
	}

	return out
}

// convertMessages maps the neutral message list onto the OpenAI-compatible
// shape OpenRouter accepts. Multi-part user content becomes MultiContent so
// vision-capable models receive images.
func convertMessages(msgs []provider.LLMMessage) []sdkopenai.ChatCompletionMessage {
	out := make([]sdkopenai.ChatCompletionMessage, 0, len(msgs))

	for _, msg := range msgs {
		m := sdkopenai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolID,
		}

		if msg.Role == provider.MessageRoleUser && len(msg.ContentParts) > 0 {
			m.Content = ""
			m.MultiContent = convertParts(msg.ContentParts)
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
	}

	return out
}

// convertParts maps neutral content parts to chat message parts. Unknown
// part types are dropped.
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

// convertTools maps tool definitions to function declarations. Schemas pass
// through as raw JSON; OpenRouter forwards them to the upstream model as is.
func convertTools(tools []provider.ToolDefinition) []sdkopenai.Tool {
	out := make([]sdkopenai.Tool, len(tools))
	for i, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
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
	cr := provider.CompletionResponse{
		FinishReason: provider.FinishReasonStop,
		Usage: provider.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return cr
	}

	choice := resp.Choices[0]
	cr.Content = choice.Message.Content
	cr.FinishReason = convertFinishReason(choice.FinishReason)

	for _, tc := range choice.Message.ToolCalls {
		cr.ToolCalls = append(cr.ToolCalls, provider.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}

	return cr
}

// convertFinishReason maps an OpenAI-compatible finish reason to the
// neutral one.
func convertFinishReason(reason sdkopenai.FinishReason) provider.FinishReason {
	switch reason {
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
