package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	ctxengine "github.com/parleyhq/parley/internal/context"
	"github.com/parleyhq/parley/internal/ledger"
	"github.com/parleyhq/parley/internal/provider"
	"github.com/parleyhq/parley/internal/usage"
)

// GenerateRequest is the input for one generation attempt.
type GenerateRequest struct {
	// ConversationID scopes the ledger write for the generation.
	ConversationID string

	// TriggerHash is the content hash of the message that triggered the
	// generation. Tool calls are recorded under it.
	TriggerHash string

	// Messages is the model input sequence.
	Messages []provider.LLMMessage

	// Tools are the definitions offered to the model for this generation.
	Tools []provider.ToolDefinition

	// OnToolStart fires when the model requests a tool call, before the
	// tool executes. The session queue uses it to mark the generation as
	// running tools and to surface progress.
	OnToolStart func(toolName string)
}

// GenerateResult is the outcome of one generation attempt.
type GenerateResult struct {
	// Content is the final reply text, empty when the model produced none.
	Content string

	// Records are the tool invocations made during the generation, in order.
	Records []ToolCallRecord

	// Usage is the total token consumption across all loop iterations.
	Usage provider.TokenUsage

	// Iterations is the number of loop iterations consumed.
	Iterations int

	// StopReason tells why the loop stopped.
	StopReason StopReason

	// Cancelled is true when the generation was aborted by its token.
	// A cancelled generation is not an error and carries no reply.
	Cancelled bool
}

// DriverOption configures optional Driver collaborators.
type DriverOption func(*Driver)

// WithUsageRecorder attaches a usage recorder; token counts are forwarded
// to it per provider call, tagged with day and model.
func WithUsageRecorder(r usage.Recorder) DriverOption {
	return func(d *Driver) { d.usage = r }
}

// WindowCheck configures the pre-flight context size estimate.
type WindowCheck struct {
	// Estimator supplies token estimates. Nil disables the check.
	Estimator ctxengine.TokenEstimator

	// WindowOverride replaces the provider-reported context window size
	// when positive.
	WindowOverride int

	// ReplyReserve is the token allowance kept for the model's reply.
	ReplyReserve int
}

// WithWindowCheck enables estimating each request against the context
// window before it is sent.
func WithWindowCheck(wc WindowCheck) DriverOption {
	return func(d *Driver) { d.window = wc }
}

// WithLogger injects a structured logger.
func WithLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) { d.log = l }
}

// Driver runs one generation to completion or cancellation: it consumes the
// loop's event stream, relays tool-start notifications, forwards usage, and
// records the accumulated tool calls into the ledger on normal completion.
type Driver struct {
	provider provider.Provider
	loop     *Loop
	ledger   *ledger.Ledger
	usage    usage.Recorder
	window   WindowCheck
	log      *slog.Logger

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// NewDriver creates a Driver running generations against p.
func NewDriver(p provider.Provider, executor *ToolExecutor, led *ledger.Ledger, cfg LoopConfig, opts ...DriverOption) *Driver {
	d := &Driver{
		provider: p,
		loop:     NewLoop(p, executor, cfg),
		ledger:   led,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	return d
}

// Generate performs one generation attempt.
//
// The cancellation token is checked before every state-mutating step: a
// generation cancelled mid-stream records nothing and reports
// Cancelled=true with a nil error. Provider and loop failures propagate as
// errors; the caller owns user-visible messaging.
func (d *Driver) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	d.preflight(req)

	events, err := d.loop.RunStream(ctx, Request{
		Messages: req.Messages,
		Tools:    req.Tools,
	})
	if err != nil {
		if isCancelled(ctx, err) {
			return GenerateResult{Cancelled: true}, nil
		}
		return GenerateResult{}, err
	}

	var (
		content   strings.Builder
		records   []ToolCallRecord
		total     provider.TokenUsage
		final     *Response
		streamErr error
	)

	for ev := range events {
		switch ev.Type {
		case StreamEventText:
			content.WriteString(ev.Content)
		case StreamEventToolStart:
			if req.OnToolStart != nil && ev.ToolCall != nil {
				req.OnToolStart(ev.ToolCall.Name)
			}
		case StreamEventToolEnd:
			if ev.ToolCall != nil {
				records = append(records, *ev.ToolCall)
			}
		case StreamEventUsage:
			if ev.Usage != nil {
				addUsage(&total, *ev.Usage)
				d.recordUsage(ctx, *ev.Usage)
			}
		case StreamEventError:
			streamErr = ev.Err
		case StreamEventDone:
			final = ev.Final
		}
	}

	if streamErr != nil {
		if isCancelled(ctx, streamErr) {
			return GenerateResult{Usage: total, Cancelled: true}, nil
		}
		return GenerateResult{Usage: total}, streamErr
	}

	// A token cancelled after the last event still suppresses the reply
	// and the ledger write.
	if ctx.Err() != nil {
		return GenerateResult{Usage: total, Cancelled: true}, nil
	}

	if len(records) > 0 {
		d.ledger.Record(req.ConversationID, req.TriggerHash, toLedgerRecords(records))
	}

	result := GenerateResult{
		Content: content.String(),
		Records: records,
		Usage:   total,
	}
	if final != nil {
		result.Iterations = final.Iterations
		result.StopReason = final.StopReason
	}
	return result, nil
}

// preflight estimates the request's token footprint against the context
// window and logs the breakdown. The estimate is advisory; the provider
// has the final word, and a true overflow surfaces as a provider error.
func (d *Driver) preflight(req GenerateRequest) {
	est := d.window.Estimator
	if est == nil {
		return
	}
	size := d.window.WindowOverride
	if size <= 0 {
		size = d.provider.ContextWindowSize()
	}
	if size <= 0 {
		return
	}

	var sysParts []string
	var history []provider.LLMMessage
	for _, m := range req.Messages {
		if m.Role == provider.MessageRoleSystem {
			sysParts = append(sysParts, m.Content)
			continue
		}
		history = append(history, m)
	}

	budget := ctxengine.ContextBudget{
		WindowSize: size,
		System:     ctxengine.EstimateSystemPrompt(est, sysParts),
		Tools:      ctxengine.EstimateToolDefinitions(est, req.Tools),
		History:    ctxengine.EstimateMessages(est, history),
		Reserved:   d.window.ReplyReserve,
	}
	if budget.Exceeded() {
		d.log.Warn("driver: estimated context exceeds window",
			"model", d.provider.ModelName(),
			"window", size,
			"estimated", budget.Used(),
		)
		return
	}
	d.log.Debug("driver: context budget",
		"window", size,
		"used", budget.Used(),
		"available", budget.Available(),
	)
}

// recordUsage forwards one provider call's token counts to the usage
// recorder. Failures are logged, never propagated; usage is advisory.
func (d *Driver) recordUsage(ctx context.Context, u provider.TokenUsage) {
	if d.usage == nil || ctx.Err() != nil {
		return
	}
	entry := usage.Entry{
		Day:          usage.DayOf(d.now()),
		Model:        d.provider.ModelName(),
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		Requests:     1,
	}
	if err := d.usage.Record(ctx, entry); err != nil {
		d.log.Warn("driver: usage record failed", "model", entry.Model, "error", err)
	}
}

// isCancelled reports whether the generation was aborted by its token
// rather than failing on its own.
func isCancelled(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled
}

func addUsage(total *provider.TokenUsage, u provider.TokenUsage) {
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}

func toLedgerRecords(records []ToolCallRecord) []ledger.Record {
	out := make([]ledger.Record, 0, len(records))
	for _, r := range records {
		out = append(out, ledger.Record{
			ID:        r.ID,
			Name:      r.Name,
			Arguments: r.Arguments,
			Output:    r.Output.Content,
			IsError:   r.Output.IsError,
		})
	}
	return out
}
