package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/parleyhq/parley/internal/agent"
)

// TraceConfig configures OTLP trace export. An empty Endpoint disables
// export entirely; spans are still created but never leave the process.
type TraceConfig struct {
	// ServiceName identifies this process in traces. Empty means "parley".
	ServiceName string

	// ServiceVersion is the build version attached to every span.
	ServiceVersion string

	// Environment is the deployment environment resource attribute.
	Environment string

	// Endpoint is the OTLP/HTTP collector endpoint, host:port.
	Endpoint string

	// SampleRatio is the fraction of traces recorded, 0.0 to 1.0.
	// Zero means record everything.
	SampleRatio float64

	// Insecure disables TLS on the collector connection.
	Insecure bool
}

// Tracer creates spans for the generation path. Construct with NewTracer.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a Tracer and its shutdown function. With an empty
// endpoint the returned Tracer uses the global (no-op) provider and the
// shutdown function does nothing.
func NewTracer(cfg TraceConfig) (*Tracer, func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "parley"
	}

	if cfg.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)},
			func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, nil, err
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		res = resource.Default()
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1.0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t := &Tracer{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
	}
	return t, provider.Shutdown, nil
}

// Start opens a span. The caller must End it.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError marks the span failed and attaches the error.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Generator matches the router's generation driver contract.
type Generator interface {
	Generate(ctx context.Context, req agent.GenerateRequest) (agent.GenerateResult, error)
}

// TracedGenerator decorates a Generator with one span per generation,
// carrying conversation identity, loop stats, and token counts.
type TracedGenerator struct {
	next   Generator
	tracer *Tracer
}

// NewTracedGenerator wraps next so every Generate call produces a span.
func NewTracedGenerator(next Generator, tracer *Tracer) *TracedGenerator {
	return &TracedGenerator{next: next, tracer: tracer}
}

// Generate implements Generator.
func (g *TracedGenerator) Generate(ctx context.Context, req agent.GenerateRequest) (agent.GenerateResult, error) {
	ctx, span := g.tracer.Start(ctx, "generate",
		attribute.String("conversation_id", req.ConversationID),
		attribute.Int("tools_offered", len(req.Tools)),
	)
	defer span.End()

	res, err := g.next.Generate(ctx, req)
	if err != nil {
		g.tracer.RecordError(span, err)
		return res, err
	}

	span.SetAttributes(
		attribute.Int("iterations", res.Iterations),
		attribute.String("stop_reason", string(res.StopReason)),
		attribute.Int("input_tokens", res.Usage.PromptTokens),
		attribute.Int("output_tokens", res.Usage.CompletionTokens),
		attribute.Bool("cancelled", res.Cancelled),
	)
	return res, nil
}
