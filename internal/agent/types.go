// Package agent turns a prepared model context into a reply by looping
// over provider calls and tool executions until the model stops asking
// for tools.
package agent

import (
	"encoding/json"
	"time"

	"github.com/parleyhq/parley/internal/provider"
	"github.com/parleyhq/parley/internal/tool"
)

// StopReason describes why a run ended.
type StopReason string

// StopReason values.
const (
	StopReasonComplete StopReason = "complete"

	// Guardrail stops. The text produced so far still goes out.
	StopReasonMaxIterations StopReason = "max_iterations"
	StopReasonTokenBudget   StopReason = "token_budget"
	StopReasonTimeout       StopReason = "timeout"
	StopReasonLoopDetected  StopReason = "loop_detected"

	StopReasonError StopReason = "error"
)

// ToolCallRecord captures one tool invocation: what was asked, what came
// back, and how the execution went.
type ToolCallRecord struct {
	// The call as the model issued it.
	ID        string
	Name      string
	Arguments json.RawMessage

	// How execution went.
	Output   tool.Output
	Duration time.Duration
	Panicked bool
}

// StreamEventType tags events emitted during streaming runs.
type StreamEventType string

// StreamEventType values.
const (
	// Incremental progress.
	StreamEventText      StreamEventType = "text"
	StreamEventToolStart StreamEventType = "tool_start"
	StreamEventToolEnd   StreamEventType = "tool_end"
	StreamEventUsage     StreamEventType = "usage"

	// Terminal events.
	StreamEventDone  StreamEventType = "done"
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one unit of progress from RunStream.
type StreamEvent struct {
	Type StreamEventType

	Content  string
	ToolCall *ToolCallRecord
	Usage    *provider.TokenUsage

	// Final carries the aggregated response, set only on StreamEventDone.
	Final *Response
	Err   error
}

// Request is the input to a run.
type Request struct {
	SystemPrompt string
	Messages     []provider.LLMMessage
	Tools        []provider.ToolDefinition
	Config       LoopConfig
}

// Response is the aggregated output of a run.
type Response struct {
	Content   string
	ToolCalls []ToolCallRecord

	// Run accounting.
	TotalUsage provider.TokenUsage
	Iterations int
	StopReason StopReason
}
