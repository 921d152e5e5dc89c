package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	ctxengine "github.com/parleyhq/parley/internal/context"
	"github.com/parleyhq/parley/internal/ledger"
	"github.com/parleyhq/parley/internal/provider"
	"github.com/parleyhq/parley/internal/tool"
	"github.com/parleyhq/parley/internal/usage"
)

// fakeUsageRecorder captures forwarded entries.
type fakeUsageRecorder struct {
	mu      sync.Mutex
	entries []usage.Entry
	err     error
}

func (f *fakeUsageRecorder) Record(_ context.Context, e usage.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeUsageRecorder) Totals(context.Context, string) ([]usage.Entry, error) {
	return nil, nil
}

func (f *fakeUsageRecorder) recorded() []usage.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]usage.Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// cancellingProvider serves one prepared stream, then aborts the
// generation token on the next call. That leaves a completed tool round
// behind a cancellation, which is the preemption race the driver must
// swallow without a ledger write.
type cancellingProvider struct {
	mu     sync.Mutex
	calls  int
	first  []provider.StreamChunk
	cancel context.CancelFunc
}

func (m *cancellingProvider) Complete(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
	return provider.CompletionResponse{}, fmt.Errorf("unexpected Complete call")
}

func (m *cancellingProvider) Stream(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls > 1 {
		m.cancel()
		return nil, context.Canceled
	}
	ch := make(chan provider.StreamChunk, len(m.first))
	for _, c := range m.first {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (m *cancellingProvider) ContextWindowSize() int { return 128000 }
func (m *cancellingProvider) ModelName() string      { return "scripted-model" }

func newTestDriver(p provider.Provider, led *ledger.Ledger, opts ...DriverOption) *Driver {
	executor := executorWith(&fakeTool{
		name: "get_time",
		out:  tool.Output{Content: "12:00"},
	})
	opts = append(opts, WithLogger(quietLogger()))
	return NewDriver(p, executor, led, LoopConfig{MaxIterations: 5, Timeout: time.Minute}, opts...)
}

func toolCallChunk(id, name string) provider.StreamChunk {
	return provider.StreamChunk{
		ToolCalls: []provider.ToolCall{callFor(id, name)},
		Usage:     &provider.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func TestGenerate_TextReply(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{
		feeds: [][]provider.StreamChunk{
			{
				{Content: "hel"},
				{Content: "lo", Usage: &provider.TokenUsage{PromptTokens: 8, CompletionTokens: 2, TotalTokens: 10}},
			},
		},
	}
	led := ledger.New()
	d := newTestDriver(p, led)

	result, err := d.Generate(context.Background(), GenerateRequest{
		ConversationID: "chat-1",
		TriggerHash:    ledger.ContentHash("hi"),
		Messages:       []provider.LLMMessage{asUser("hi")},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Content != "hello" {
		t.Errorf("Content = %q, want hello", result.Content)
	}
	if result.Cancelled {
		t.Error("expected Cancelled=false")
	}
	if len(result.Records) != 0 {
		t.Errorf("expected no tool records, got %d", len(result.Records))
	}
	if led.Len() != 0 {
		t.Errorf("tool-free generation wrote %d ledger entries", led.Len())
	}
	if result.Usage.TotalTokens != 10 {
		t.Errorf("Usage.TotalTokens = %d, want 10", result.Usage.TotalTokens)
	}
}

func TestGenerate_ToolFlowRecordsLedger(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{
		feeds: [][]provider.StreamChunk{
			{toolCallChunk("c1", "get_time")},
			{
				{Content: "it is noon"},
				{Usage: &provider.TokenUsage{PromptTokens: 20, CompletionTokens: 4, TotalTokens: 24}},
			},
		},
	}
	led := ledger.New()
	d := newTestDriver(p, led)

	var started []string
	hash := ledger.ContentHash("what time is it?")
	result, err := d.Generate(context.Background(), GenerateRequest{
		ConversationID: "chat-1",
		TriggerHash:    hash,
		Messages:       []provider.LLMMessage{asUser("what time is it?")},
		OnToolStart:    func(name string) { started = append(started, name) },
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Content != "it is noon" {
		t.Errorf("Content = %q, want 'it is noon'", result.Content)
	}
	if len(started) != 1 || started[0] != "get_time" {
		t.Errorf("OnToolStart calls = %v, want [get_time]", started)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 tool record, got %d", len(result.Records))
	}
	if result.Records[0].Name != "get_time" || result.Records[0].Output.Content != "12:00" {
		t.Errorf("record = %+v", result.Records[0])
	}

	recs, ok := led.Lookup(hash)
	if !ok {
		t.Fatal("expected a ledger entry under the trigger hash")
	}
	if len(recs) != 1 {
		t.Fatalf("ledger records = %d, want 1", len(recs))
	}
	if recs[0].ID != "c1" || recs[0].Name != "get_time" || recs[0].Output != "12:00" || recs[0].IsError {
		t.Errorf("ledger record = %+v", recs[0])
	}
	if hashes := led.Hashes("chat-1"); len(hashes) != 1 || hashes[0] != hash {
		t.Errorf("Hashes(chat-1) = %v, want [%s]", hashes, hash)
	}
}

func TestGenerate_ErrorToolResultRecorded(t *testing.T) {
	t.Parallel()

	executor := executorWith(&fakeTool{
		name: "flaky",
		fail: errors.New("disk on fire"),
	})
	p := &scriptedProvider{
		feeds: [][]provider.StreamChunk{
			{toolCallChunk("c1", "flaky")},
			{{Content: "that failed"}},
		},
	}
	led := ledger.New()
	d := NewDriver(p, executor, led, LoopConfig{MaxIterations: 5, Timeout: time.Minute}, WithLogger(quietLogger()))

	hash := ledger.ContentHash("try it")
	if _, err := d.Generate(context.Background(), GenerateRequest{
		ConversationID: "chat-1",
		TriggerHash:    hash,
		Messages:       []provider.LLMMessage{asUser("try it")},
	}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	recs, ok := led.Lookup(hash)
	if !ok || len(recs) != 1 {
		t.Fatalf("Lookup = %v, %v", recs, ok)
	}
	if !recs[0].IsError {
		t.Error("expected the failed call recorded as an error result")
	}
	if !strings.Contains(recs[0].Output, "disk on fire") {
		t.Errorf("Output = %q, want the failure text preserved", recs[0].Output)
	}
}

func TestGenerate_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{}
	led := ledger.New()
	d := newTestDriver(p, led)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := d.Generate(ctx, GenerateRequest{
		ConversationID: "chat-1",
		TriggerHash:    ledger.ContentHash("hi"),
		Messages:       []provider.LLMMessage{asUser("hi")},
	})
	if err != nil {
		t.Fatalf("cancellation must not surface as an error, got %v", err)
	}
	if !result.Cancelled {
		t.Error("expected Cancelled=true")
	}
	if result.Content != "" {
		t.Errorf("cancelled generation produced content %q", result.Content)
	}
	if led.Len() != 0 {
		t.Error("cancelled generation wrote to the ledger")
	}
}

// A generation cancelled after its tools already ran must surface neither
// reply nor error, and must leave no trace in the ledger.
func TestGenerate_CancelledAfterToolsNoLedgerWrite(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &cancellingProvider{
		first:  []provider.StreamChunk{toolCallChunk("c1", "get_time")},
		cancel: cancel,
	}
	led := ledger.New()
	d := newTestDriver(p, led)

	result, err := d.Generate(ctx, GenerateRequest{
		ConversationID: "chat-1",
		TriggerHash:    ledger.ContentHash("what time is it?"),
		Messages:       []provider.LLMMessage{asUser("what time is it?")},
	})
	if err != nil {
		t.Fatalf("cancellation must not surface as an error, got %v", err)
	}
	if !result.Cancelled {
		t.Error("expected Cancelled=true")
	}
	if result.Content != "" {
		t.Errorf("cancelled generation produced content %q", result.Content)
	}
	if led.Len() != 0 {
		t.Error("cancelled generation wrote its tool round to the ledger")
	}
}

func TestGenerate_StreamErrorPropagates(t *testing.T) {
	t.Parallel()

	upstream := errors.New("upstream hiccup")
	p := &scriptedProvider{
		feeds: [][]provider.StreamChunk{
			{{Content: "partial"}, {Err: upstream}},
		},
	}
	led := ledger.New()
	d := newTestDriver(p, led)

	_, err := d.Generate(context.Background(), GenerateRequest{
		ConversationID: "chat-1",
		TriggerHash:    ledger.ContentHash("hi"),
		Messages:       []provider.LLMMessage{asUser("hi")},
	})
	if !errors.Is(err, upstream) {
		t.Fatalf("err = %v, want %v", err, upstream)
	}
	if led.Len() != 0 {
		t.Error("failed generation wrote to the ledger")
	}
}

func TestGenerate_UsageForwarded(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{
		feeds: [][]provider.StreamChunk{
			{toolCallChunk("c1", "get_time")},
			{
				{Content: "noon"},
				{Usage: &provider.TokenUsage{PromptTokens: 20, CompletionTokens: 4, TotalTokens: 24}},
			},
		},
	}
	rec := &fakeUsageRecorder{}
	led := ledger.New()
	d := newTestDriver(p, led, WithUsageRecorder(rec))
	d.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	result, err := d.Generate(context.Background(), GenerateRequest{
		ConversationID: "chat-1",
		TriggerHash:    ledger.ContentHash("what time is it?"),
		Messages:       []provider.LLMMessage{asUser("what time is it?")},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	entries := rec.recorded()
	if len(entries) != 2 {
		t.Fatalf("expected one usage entry per provider call, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Day != "2025-06-01" {
			t.Errorf("entry %d Day = %q, want 2025-06-01", i, e.Day)
		}
		if e.Model != "scripted-model" {
			t.Errorf("entry %d Model = %q, want scripted-model", i, e.Model)
		}
		if e.Requests != 1 {
			t.Errorf("entry %d Requests = %d, want 1", i, e.Requests)
		}
	}
	if entries[0].InputTokens != 10 || entries[0].OutputTokens != 5 {
		t.Errorf("entry 0 tokens = %d/%d, want 10/5", entries[0].InputTokens, entries[0].OutputTokens)
	}
	if entries[1].InputTokens != 20 || entries[1].OutputTokens != 4 {
		t.Errorf("entry 1 tokens = %d/%d, want 20/4", entries[1].InputTokens, entries[1].OutputTokens)
	}
	if result.Usage.TotalTokens != 39 {
		t.Errorf("Usage.TotalTokens = %d, want 39", result.Usage.TotalTokens)
	}
}

func TestGenerate_UsageRecorderFailureIgnored(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{
		feeds: [][]provider.StreamChunk{
			{
				{Content: "hi there"},
				{Usage: &provider.TokenUsage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}},
			},
		},
	}
	rec := &fakeUsageRecorder{err: errors.New("db locked")}
	led := ledger.New()
	d := newTestDriver(p, led, WithUsageRecorder(rec))

	result, err := d.Generate(context.Background(), GenerateRequest{
		ConversationID: "chat-1",
		TriggerHash:    ledger.ContentHash("hi"),
		Messages:       []provider.LLMMessage{asUser("hi")},
	})
	if err != nil {
		t.Fatalf("usage recorder failure must not fail the generation: %v", err)
	}
	if result.Content != "hi there" {
		t.Errorf("Content = %q, want 'hi there'", result.Content)
	}
}

// preflightDriver builds a driver whose log output is captured and whose
// provider serves a single plain reply.
func preflightDriver(buf *bytes.Buffer, wc WindowCheck) *Driver {
	p := &scriptedProvider{feeds: [][]provider.StreamChunk{{{Content: "ok"}}}}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewDriver(p, executorWith(), ledger.New(),
		LoopConfig{MaxIterations: 5, Timeout: time.Minute},
		WithLogger(logger), WithWindowCheck(wc))
}

func TestGenerate_PreflightWarnsWhenOverWindow(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := preflightDriver(&buf, WindowCheck{
		Estimator:      ctxengine.NewCharEstimator(0),
		WindowOverride: 16,
		ReplyReserve:   8,
	})

	_, err := d.Generate(context.Background(), GenerateRequest{
		ConversationID: "chat-1",
		TriggerHash:    ledger.ContentHash("hi"),
		Messages:       []provider.LLMMessage{asUser(strings.Repeat("tell me everything ", 10))},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(buf.String(), "estimated context exceeds window") {
		t.Errorf("log output lacks the window warning:\n%s", buf.String())
	}
}

func TestGenerate_PreflightReportsBudgetWithinWindow(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := preflightDriver(&buf, WindowCheck{
		Estimator:      ctxengine.NewCharEstimator(0),
		WindowOverride: 4096,
		ReplyReserve:   256,
	})

	_, err := d.Generate(context.Background(), GenerateRequest{
		ConversationID: "chat-1",
		TriggerHash:    ledger.ContentHash("hi"),
		Messages:       []provider.LLMMessage{asUser("hi")},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Contains(buf.String(), "exceeds window") {
		t.Errorf("fitting request logged an overflow warning:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "context budget") {
		t.Errorf("debug breakdown missing:\n%s", buf.String())
	}
}
