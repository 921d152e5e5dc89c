package agent

import (
	"context"
	"errors"

	"github.com/parleyhq/parley/internal/provider"
)

// Sentinel errors for loop termination.
var (
	// ErrTokenBudgetExceeded stops a run whose cumulative usage crossed
	// the configured budget.
	ErrTokenBudgetExceeded = errors.New("agent: token budget exceeded")

	// ErrMaxIterationsReached stops a run that never settled on a plain
	// text answer.
	ErrMaxIterationsReached = errors.New("agent: max iterations reached")

	// ErrLoopDetected stops a run stuck repeating the same tool call.
	ErrLoopDetected = errors.New("agent: loop detected")
)

// Loop drives the reason-act cycle: call the model, run whatever tools it
// asked for, feed the results back, repeat until the model answers in
// plain text or a guard trips.
type Loop struct {
	provider provider.Provider
	executor *ToolExecutor

	// config is normalized by withDefaults at construction.
	config LoopConfig
}

// NewLoop wires a provider and a tool executor under cfg's guardrails.
func NewLoop(p provider.Provider, executor *ToolExecutor, cfg LoopConfig) *Loop {
	return &Loop{provider: p, executor: executor, config: cfg.withDefaults()}
}

// turnState carries everything one Run or RunStream invocation mutates:
// the growing conversation history, the accumulated tool records, and the
// two guards.
type turnState struct {
	guard   *repeatGuard
	meter   *spendMeter
	history []provider.LLMMessage
	tools   []provider.ToolDefinition
	records []ToolCallRecord
}

func (l *Loop) newTurn(req Request) *turnState {
	t := &turnState{
		guard: newRepeatGuard(l.config.LoopThreshold),
		meter: newSpendMeter(l.config.TokenBudget),
		tools: req.Tools,
	}
	if req.SystemPrompt != "" {
		t.history = append(t.history, provider.LLMMessage{
			Role:    provider.MessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	t.history = append(t.history, req.Messages...)
	return t
}

// request snapshots the current history into a provider request.
func (t *turnState) request() provider.CompletionRequest {
	return provider.CompletionRequest{Messages: t.history, Tools: t.tools}
}

// repeats reports whether any call in the batch pushes the repeat guard
// over its limit. Checked before the assistant turn is appended so a
// tripped guard never leaves tool calls without results in the history.
func (t *turnState) repeats(calls []provider.ToolCall) bool {
	for _, c := range calls {
		if t.guard.observe(c.Name, c.Arguments) {
			return true
		}
	}
	return false
}

// noteAssistant appends the model's turn. The tool calls ride on the
// message because providers reject tool results that reference calls
// absent from the history.
func (t *turnState) noteAssistant(content string, calls []provider.ToolCall) {
	t.history = append(t.history, provider.LLMMessage{
		Role:      provider.MessageRoleAssistant,
		Content:   content,
		ToolCalls: calls,
	})
}

// noteResults folds executed records into the running tally and re-injects
// each output as a tool-role message.
func (t *turnState) noteResults(records []ToolCallRecord) {
	t.records = append(t.records, records...)
	for _, rec := range records {
		t.history = append(t.history, provider.LLMMessage{
			Role:    provider.MessageRoleTool,
			Content: rec.Output.Content,
			ToolID:  rec.ID,
			IsError: rec.Output.IsError,
		})
	}
}

// outcome assembles the Response after n completed rounds.
func (t *turnState) outcome(n int, reason StopReason, content string) Response {
	return Response{
		Content:    content,
		ToolCalls:  t.records,
		TotalUsage: t.meter.spent(),
		Iterations: n,
		StopReason: reason,
	}
}

// Run executes the loop synchronously and returns the final response.
//
// The run is bounded by l.config.Timeout via context.WithTimeout; a
// shorter deadline already on ctx wins.
func (l *Loop) Run(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	t := l.newTurn(req)

	for round := 0; round < l.config.MaxIterations; round++ {
		if err := ctx.Err(); err != nil {
			reason := StopReasonError
			if errors.Is(err, context.DeadlineExceeded) {
				reason = StopReasonTimeout
			}
			return t.outcome(round, reason, ""), err
		}
		if t.meter.drained() {
			return t.outcome(round, StopReasonTokenBudget, ""), ErrTokenBudgetExceeded
		}

		resp, err := l.provider.Complete(ctx, t.request())
		if err != nil {
			return t.outcome(round, StopReasonError, ""), err
		}

		t.meter.charge(resp.Usage)
		if t.meter.drained() {
			return t.outcome(round+1, StopReasonTokenBudget, ""), ErrTokenBudgetExceeded
		}

		// A turn without tool calls is the model's final answer.
		if len(resp.ToolCalls) == 0 {
			return t.outcome(round+1, StopReasonComplete, resp.Content), nil
		}
		if t.repeats(resp.ToolCalls) {
			return t.outcome(round+1, StopReasonLoopDetected, ""), ErrLoopDetected
		}

		t.noteAssistant(resp.Content, resp.ToolCalls)
		t.noteResults(l.executor.Execute(ctx, resp.ToolCalls))
	}

	return t.outcome(l.config.MaxIterations, StopReasonMaxIterations, ""), ErrMaxIterationsReached
}

// streamTally is what one provider stream produced once drained.
type streamTally struct {
	content string
	calls   []provider.ToolCall
	usage   *provider.TokenUsage
}

// relayStream drains one provider stream, forwarding text chunks to out as
// they arrive and collecting tool calls and usage. On a chunk error the
// rest of the stream is consumed first, so the provider goroutine can
// finish, then the error is returned.
func relayStream(src <-chan provider.StreamChunk, out chan<- StreamEvent) (streamTally, error) {
	var tally streamTally
	for chunk := range src {
		if chunk.Err != nil {
			for range src {
			}
			return tally, chunk.Err
		}
		if chunk.Content != "" {
			tally.content += chunk.Content
			out <- StreamEvent{Type: StreamEventText, Content: chunk.Content}
		}
		tally.calls = append(tally.calls, chunk.ToolCalls...)
		if chunk.Usage != nil {
			tally.usage = chunk.Usage
		}
	}
	return tally, nil
}

// RunStream executes the loop and emits progress over a channel. The
// channel closes after a Done or Error event.
//
// The run is bounded by l.config.Timeout via context.WithTimeout; a
// shorter deadline already on ctx wins.
func (l *Loop) RunStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	events := make(chan StreamEvent, 16)

	go func() {
		defer close(events)

		ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
		defer cancel()

		fail := func(err error) {
			events <- StreamEvent{Type: StreamEventError, Err: err}
		}

		t := l.newTurn(req)

		for round := 0; round < l.config.MaxIterations; round++ {
			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}
			if t.meter.drained() {
				fail(ErrTokenBudgetExceeded)
				return
			}

			src, err := l.provider.Stream(ctx, t.request())
			if err != nil {
				fail(err)
				return
			}

			tally, err := relayStream(src, events)
			if err != nil {
				fail(err)
				return
			}

			if tally.usage != nil {
				t.meter.charge(*tally.usage)
				events <- StreamEvent{Type: StreamEventUsage, Usage: tally.usage}
				if t.meter.drained() {
					fail(ErrTokenBudgetExceeded)
					return
				}
			}

			if len(tally.calls) == 0 {
				final := t.outcome(round+1, StopReasonComplete, tally.content)
				events <- StreamEvent{Type: StreamEventDone, Final: &final}
				return
			}
			if t.repeats(tally.calls) {
				fail(ErrLoopDetected)
				return
			}

			t.noteAssistant(tally.content, tally.calls)

			for _, call := range tally.calls {
				events <- StreamEvent{
					Type:     StreamEventToolStart,
					ToolCall: &ToolCallRecord{ID: call.ID, Name: call.Name, Arguments: call.Arguments},
				}
			}

			records := l.executor.Execute(ctx, tally.calls)
			for i := range records {
				events <- StreamEvent{Type: StreamEventToolEnd, ToolCall: &records[i]}
			}
			t.noteResults(records)
		}

		fail(ErrMaxIterationsReached)
	}()

	return events, nil
}
