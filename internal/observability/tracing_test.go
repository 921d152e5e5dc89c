package observability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/parleyhq/parley/internal/agent"
	"github.com/parleyhq/parley/internal/provider"
)

// newRecordingTracer builds a Tracer whose spans land in the returned
// recorder instead of an exporter.
func newRecordingTracer() (*Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return &Tracer{provider: tp, tracer: tp.Tracer("test")}, recorder
}

type generatorFunc func(ctx context.Context, req agent.GenerateRequest) (agent.GenerateResult, error)

func (f generatorFunc) Generate(ctx context.Context, req agent.GenerateRequest) (agent.GenerateResult, error) {
	return f(ctx, req)
}

func findAttr(t *testing.T, attrs []attribute.KeyValue, key string) attribute.Value {
	t.Helper()
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value
		}
	}
	t.Fatalf("attribute %q not found", key)
	return attribute.Value{}
}

func TestNewTracer_NoEndpoint(t *testing.T) {
	tracer, shutdown, err := NewTracer(TraceConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("NewTracer() error = %v", err)
	}
	if tracer == nil {
		t.Fatal("NewTracer() returned nil tracer")
	}

	// Spans are creatable but go nowhere.
	_, span := tracer.Start(context.Background(), "op")
	tracer.RecordError(span, nil)
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown error = %v", err)
	}
}

func TestNewTracer_WithEndpoint(t *testing.T) {
	tracer, shutdown, err := NewTracer(TraceConfig{
		ServiceName: "test",
		Endpoint:    "localhost:4318",
		Insecure:    true,
		SampleRatio: 0.5,
	})
	if err != nil {
		t.Fatalf("NewTracer() error = %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if tracer == nil {
		t.Fatal("NewTracer() returned nil tracer")
	}
}

func TestTracedGenerator_RecordsSpan(t *testing.T) {
	tracer, recorder := newRecordingTracer()

	next := generatorFunc(func(_ context.Context, _ agent.GenerateRequest) (agent.GenerateResult, error) {
		return agent.GenerateResult{
			Content:    "hello",
			Iterations: 2,
			StopReason: agent.StopReasonComplete,
			Usage:      provider.TokenUsage{PromptTokens: 100, CompletionTokens: 20},
		}, nil
	})

	g := NewTracedGenerator(next, tracer)
	res, err := g.Generate(context.Background(), agent.GenerateRequest{ConversationID: "discord:C1"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.Content != "hello" {
		t.Errorf("Content = %q", res.Content)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "generate" {
		t.Errorf("span name = %q, want %q", span.Name(), "generate")
	}

	attrs := span.Attributes()
	if got := findAttr(t, attrs, "conversation_id").AsString(); got != "discord:C1" {
		t.Errorf("conversation_id = %q", got)
	}
	if got := findAttr(t, attrs, "iterations").AsInt64(); got != 2 {
		t.Errorf("iterations = %d, want 2", got)
	}
	if got := findAttr(t, attrs, "stop_reason").AsString(); got != "complete" {
		t.Errorf("stop_reason = %q, want %q", got, "complete")
	}
	if got := findAttr(t, attrs, "input_tokens").AsInt64(); got != 100 {
		t.Errorf("input_tokens = %d, want 100", got)
	}
	if got := findAttr(t, attrs, "output_tokens").AsInt64(); got != 20 {
		t.Errorf("output_tokens = %d, want 20", got)
	}
	if findAttr(t, attrs, "cancelled").AsBool() {
		t.Error("cancelled = true, want false")
	}
	if span.Status().Code == codes.Error {
		t.Error("span marked as error on success")
	}
}

func TestTracedGenerator_RecordsFailure(t *testing.T) {
	tracer, recorder := newRecordingTracer()

	next := generatorFunc(func(_ context.Context, _ agent.GenerateRequest) (agent.GenerateResult, error) {
		return agent.GenerateResult{}, errors.New("provider unreachable")
	})

	g := NewTracedGenerator(next, tracer)
	if _, err := g.Generate(context.Background(), agent.GenerateRequest{ConversationID: "c"}); err == nil {
		t.Fatal("Generate() error = nil, want error")
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	status := spans[0].Status()
	if status.Code != codes.Error {
		t.Errorf("status code = %v, want Error", status.Code)
	}
	if !strings.Contains(status.Description, "provider unreachable") {
		t.Errorf("status description = %q", status.Description)
	}
}

func TestTracedGenerator_PropagatesSpanContext(t *testing.T) {
	tracer, _ := newRecordingTracer()

	var sawSpan bool
	next := generatorFunc(func(ctx context.Context, _ agent.GenerateRequest) (agent.GenerateResult, error) {
		sawSpan = trace.SpanContextFromContext(ctx).IsValid()
		return agent.GenerateResult{}, nil
	})

	g := NewTracedGenerator(next, tracer)
	if _, err := g.Generate(context.Background(), agent.GenerateRequest{}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !sawSpan {
		t.Error("inner generator did not receive the span context")
	}
}
