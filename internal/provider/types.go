package provider

import "encoding/json"

// Role names the slot a provider occupies in the chain.
type Role string

// Chain slots. These strings appear in YAML config.
const (
	RolePrimary  Role = "primary"  // first choice for user-facing generations
	RoleInternal Role = "internal" // summarization and other internal calls
	RoleFallback Role = "fallback" // tried when the primary fails
)

// MessageRole tags who authored a conversation message.
type MessageRole string

// Conversation author tags.
const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool" // a tool result, paired to its call by ToolID
)

// FinishReason records why generation ended.
type FinishReason string

// Termination causes reported by providers.
const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolUse   FinishReason = "tool_use"
	FinishReasonFiltering FinishReason = "filtering" // the provider's content filter cut the response
)

// LLMMessage represents a single message in a conversation. Content carries
// plain text; ContentParts, when non-empty, takes precedence and carries a
// multi-part payload (text plus images). Tool-role messages set ToolID and
// optionally IsError.
type LLMMessage struct {
	Role         MessageRole   `json:"role"`
	Content      string        `json:"content"`
	ContentParts []ContentPart `json:"content_parts,omitempty"`
	Name         string        `json:"name,omitempty"`
	ToolID       string        `json:"tool_id,omitempty"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	IsError      bool          `json:"is_error,omitempty"`
}

// ContentPartType discriminates the variant stored in a ContentPart.
type ContentPartType string

// ContentPart type constants.
const (
	ContentPartText     ContentPartType = "text"
	ContentPartImageURL ContentPartType = "image_url"
)

// ContentPart is one piece of a multi-part message payload.
type ContentPart struct {
	Type     ContentPartType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL string          `json:"image_url,omitempty"`
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Arguments stay raw so each adapter can hand them to its SDK
	// unmodified.
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition advertises a callable tool to the model.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Parameters is a JSON Schema object describing the arguments; it
	// may be nil for tools that take none.
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// CompletionRequest carries one model call's messages and sampling knobs.
// Temperature and TopP are pointers so an explicit zero survives the wire.
type CompletionRequest struct {
	Messages    []LLMMessage     `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Stop        []string         `json:"stop,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
}

// CompletionResponse is what a blocking Complete call returns.
type CompletionResponse struct {
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        TokenUsage   `json:"usage"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
}

// StreamChunk is one increment of a streamed completion. Err is local to
// the stream and never serialized.
type StreamChunk struct {
	Content      string       `json:"content,omitempty"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	Usage        *TokenUsage  `json:"usage,omitempty"`
	Err          error        `json:"-"`
}

// TokenUsage counts tokens spent on one completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the provider-reported sum; the run's token budget
	// is enforced against it.
	TotalTokens int `json:"total_tokens"`
}
