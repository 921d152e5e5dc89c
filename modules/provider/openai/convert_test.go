package openai

import (
	"encoding/json"
	"testing"

	"github.com/parleyhq/parley/internal/provider"
	sdkopenai "github.com/sashabaranov/go-openai"
)

func TestConvertMessages_AllRoles(t *testing.T) {
	msgs := []provider.LLMMessage{
		{Role: provider.MessageRoleSystem, Content: "You are helpful."},
		{Role: provider.MessageRoleUser, Content: "Hello", Name: "alice"},
		{Role: provider.MessageRoleAssistant, Content: "Hi!", ToolCalls: []provider.ToolCall{
			{ID: "call_1", Name: "search", Arguments: json.RawMessage(`{"q":"test"}`)},
		}},
		{Role: provider.MessageRoleTool, Content: `{"result":"ok"}`, Name: "search", ToolID: "call_1"},
	}

	out := convertMessages(msgs)

	if len(out) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(out))
	}

	// System
	if out[0].Role != sdkopenai.ChatMessageRoleSystem || out[0].Content != "You are helpful." {
		t.Errorf("system message mismatch: %+v", out[0])
	}

	// User with name
	if out[1].Role != sdkopenai.ChatMessageRoleUser || out[1].Name != "alice" {
		t.Errorf("user message mismatch: %+v", out[1])
	}

	// Assistant with tool calls
	if out[2].Role != sdkopenai.ChatMessageRoleAssistant || len(out[2].ToolCalls) != 1 {
		t.Errorf("assistant message mismatch: %+v", out[2])
	}
	tc := out[2].ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "search" || tc.Type != sdkopenai.ToolTypeFunction {
		t.Errorf("tool call mismatch: %+v", tc)
	}
	if tc.Function.Arguments != `{"q":"test"}` {
		t.Errorf("arguments = %q, want {\"q\":\"test\"}", tc.Function.Arguments)
	}

	// Tool result
	if out[3].Role != sdkopenai.ChatMessageRoleTool || out[3].ToolCallID != "call_1" {
		t.Errorf("tool message mismatch: %+v", out[3])
	}
}

func TestConvertMessages_MultiContent(t *testing.T) {
	msgs := []provider.LLMMessage{
		{
			Role: provider.MessageRoleUser,
			ContentParts: []provider.ContentPart{
				{Type: provider.ContentPartText, Text: "What is in this image?"},
				{Type: provider.ContentPartImageURL, ImageURL: "https://example.com/cat.png"},
			},
		},
	}

	out := convertMessages(msgs)

	if len(out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out))
	}
	if out[0].Content != "" {
		t.Errorf("plain content should be empty when multi-content is set, got %q", out[0].Content)
	}
	if len(out[0].MultiContent) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(out[0].MultiContent))
	}
	if out[0].MultiContent[0].Type != sdkopenai.ChatMessagePartTypeText {
		t.Errorf("part 0 type = %q, want text", out[0].MultiContent[0].Type)
	}
	if out[0].MultiContent[0].Text != "What is in this image?" {
		t.Errorf("part 0 text = %q", out[0].MultiContent[0].Text)
	}
	img := out[0].MultiContent[1]
	if img.Type != sdkopenai.ChatMessagePartTypeImageURL {
		t.Errorf("part 1 type = %q, want image_url", img.Type)
	}
	if img.ImageURL == nil || img.ImageURL.URL != "https://example.com/cat.png" {
		t.Errorf("part 1 image url mismatch: %+v", img.ImageURL)
	}
}

func TestConvertMessages_UnknownPartDropped(t *testing.T) {
	msgs := []provider.LLMMessage{
		{
			Role: provider.MessageRoleUser,
			ContentParts: []provider.ContentPart{
				{Type: provider.ContentPartType("video"), Text: "ignored"},
				{Type: provider.ContentPartText, Text: "kept"},
			},
		},
	}

	out := convertMessages(msgs)
	if len(out[0].MultiContent) != 1 {
		t.Fatalf("expected unknown part dropped, got %d parts", len(out[0].MultiContent))
	}
	if out[0].MultiContent[0].Text != "kept" {
		t.Errorf("surviving part = %q, want kept", out[0].MultiContent[0].Text)
	}
}

func TestConvertTools(t *testing.T) {
	tools := []provider.ToolDefinition{
		{
			Name:        "search",
			Description: "Search the web",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`),
		},
	}

	out := convertTools(tools)

	if len(out) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(out))
	}
	if out[0].Type != sdkopenai.ToolTypeFunction {
		t.Errorf("type = %q, want function", out[0].Type)
	}
	if out[0].Function.Name != "search" {
		t.Errorf("name = %q, want search", out[0].Function.Name)
	}
	if out[0].Function.Description != "Search the web" {
		t.Errorf("description = %q, want 'Search the web'", out[0].Function.Description)
	}
	params, ok := out[0].Function.Parameters.(map[string]any)
	if !ok {
		t.Fatalf("parameters type = %T, want map", out[0].Function.Parameters)
	}
	if params["type"] != "object" {
		t.Errorf("parameters type field = %v, want object", params["type"])
	}
}

func TestConvertTools_BadSchemaDegrades(t *testing.T) {
	tools := []provider.ToolDefinition{
		{Name: "broken", Parameters: json.RawMessage(`{not json`)},
	}

	out := convertTools(tools)

	params, ok := out[0].Function.Parameters.(map[string]any)
	if !ok {
		t.Fatalf("parameters type = %T, want map", out[0].Function.Parameters)
	}
	if params["type"] != "object" {
		t.Errorf("degraded schema type = %v, want object", params["type"])
	}
}

func TestConvertRequest_Overrides(t *testing.T) {
	cfgTemp := 0.5
	cfg := &Config{MaxTokens: 1000, Temperature: &cfgTemp}

	reqTemp := 0.9
	out := convertRequest(provider.CompletionRequest{
		Messages:    []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "Hi"}},
		Temperature: &reqTemp,
		MaxTokens:   500,
		Stop:        []string{"END"},
	}, cfg, "gpt-4o")

	if out.Model != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", out.Model)
	}
	if out.MaxTokens != 500 {
		t.Errorf("max_tokens = %d, want 500 (request override)", out.MaxTokens)
	}
	if out.Temperature != 0.9 {
		t.Errorf("temperature = %v, want 0.9 (request override)", out.Temperature)
	}
	if len(out.Stop) != 1 || out.Stop[0] != "END" {
		t.Errorf("stop = %v, want [END]", out.Stop)
	}
}

func TestConvertRequest_ConfigDefaults(t *testing.T) {
	cfgTemp := 0.5
	topP := 0.8
	cfg := &Config{MaxTokens: 1000, Temperature: &cfgTemp, TopP: &topP}

	out := convertRequest(provider.CompletionRequest{
		Messages: []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "Hi"}},
	}, cfg, "gpt-4o")

	if out.MaxTokens != 1000 {
		t.Errorf("max_tokens = %d, want 1000 (config default)", out.MaxTokens)
	}
	if out.Temperature != 0.5 {
		t.Errorf("temperature = %v, want 0.5 (config default)", out.Temperature)
	}
	if out.TopP != float32(0.8) {
		t.Errorf("top_p = %v, want 0.8 (config default)", out.TopP)
	}
}

func TestConvertResponse(t *testing.T) {
	resp := sdkopenai.ChatCompletionResponse{
		Choices: []sdkopenai.ChatCompletionChoice{
			{
				Message:      sdkopenai.ChatCompletionMessage{Role: "assistant", Content: "Hello!"},
				FinishReason: sdkopenai.FinishReasonStop,
			},
		},
		Usage: sdkopenai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}

	cr := convertResponse(resp)

	if cr.Content != "Hello!" {
		t.Errorf("content = %q, want Hello!", cr.Content)
	}
	if cr.FinishReason != provider.FinishReasonStop {
		t.Errorf("finish_reason = %q, want stop", cr.FinishReason)
	}
	if cr.Usage.TotalTokens != 15 {
		t.Errorf("total_tokens = %d, want 15", cr.Usage.TotalTokens)
	}
}

func TestConvertResponse_ToolCalls(t *testing.T) {
	resp := sdkopenai.ChatCompletionResponse{
		Choices: []sdkopenai.ChatCompletionChoice{
			{
				Message: sdkopenai.ChatCompletionMessage{
					Role: "assistant",
					ToolCalls: []sdkopenai.ToolCall{
						{
							ID:   "call_abc",
							Type: sdkopenai.ToolTypeFunction,
							Function: sdkopenai.FunctionCall{
								Name:      "get_weather",
								Arguments: `{"city":"Paris"}`,
							},
						},
					},
				},
				FinishReason: sdkopenai.FinishReasonToolCalls,
			},
		},
	}

	cr := convertResponse(resp)

	if cr.FinishReason != provider.FinishReasonToolUse {
		t.Errorf("finish_reason = %q, want tool_use", cr.FinishReason)
	}
	if len(cr.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(cr.ToolCalls))
	}
	if cr.ToolCalls[0].ID != "call_abc" {
		t.Errorf("id = %q, want call_abc", cr.ToolCalls[0].ID)
	}
	if cr.ToolCalls[0].Name != "get_weather" {
		t.Errorf("name = %q, want get_weather", cr.ToolCalls[0].Name)
	}
	if string(cr.ToolCalls[0].Arguments) != `{"city":"Paris"}` {
		t.Errorf("arguments = %s, want {\"city\":\"Paris\"}", cr.ToolCalls[0].Arguments)
	}
}

func TestConvertResponse_NoChoices(t *testing.T) {
	cr := convertResponse(sdkopenai.ChatCompletionResponse{
		Usage: sdkopenai.Usage{TotalTokens: 3},
	})
	if cr.Content != "" {
		t.Errorf("content = %q, want empty", cr.Content)
	}
	if cr.Usage.TotalTokens != 3 {
		t.Errorf("total_tokens = %d, want 3", cr.Usage.TotalTokens)
	}
}

func TestConvertFinishReason(t *testing.T) {
	tests := []struct {
		input sdkopenai.FinishReason
		want  provider.FinishReason
	}{
		{sdkopenai.FinishReasonStop, provider.FinishReasonStop},
		{sdkopenai.FinishReasonLength, provider.FinishReasonLength},
		{sdkopenai.FinishReasonToolCalls, provider.FinishReasonToolUse},
		{sdkopenai.FinishReasonFunctionCall, provider.FinishReasonToolUse},
		{sdkopenai.FinishReasonContentFilter, provider.FinishReasonFiltering},
		{sdkopenai.FinishReason("unknown_reason"), provider.FinishReasonStop},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			got := convertFinishReason(tt.input)
			if got != tt.want {
				t.Errorf("convertFinishReason(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
