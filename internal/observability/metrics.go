// Package observability provides the Prometheus metric catalog and optional
// OTLP trace export. One Metrics instance is created at startup and shared
// by the gateway, the router, and the instrumentation decorators.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the Prometheus metric catalog.
//
// The router reports through the observer methods (MessageReceived,
// QueueDecision, GenerationFinished, MessageSent); token and tool metrics
// are fed by the decorators in instrument.go; HTTP metrics by the gateway
// middleware.
type Metrics struct {
	registerer prometheus.Registerer

	// Messages tracks inbound and outbound messages per channel.
	// Labels: channel, direction (inbound|outbound).
	Messages *prometheus.CounterVec

	// QueueDecisionCounter counts admission verdicts.
	// Labels: decision (admitted|superseded|rejected).
	QueueDecisionCounter *prometheus.CounterVec

	// Generations counts finished generations.
	// Labels: status (success|error|cancelled).
	Generations *prometheus.CounterVec

	// GenerationSeconds measures wall time per generation, tool calls
	// included. Buckets: 0.1s to 60s.
	GenerationSeconds prometheus.Histogram

	// Tokens counts model tokens by model and type (input|output).
	Tokens *prometheus.CounterVec

	// ToolExecutions counts tool invocations.
	// Labels: tool, status (success|error).
	ToolExecutions *prometheus.CounterVec

	// ToolSeconds measures tool execution time. Labels: tool.
	ToolSeconds *prometheus.HistogramVec

	// HTTPRequests counts gateway requests.
	// Labels: method, path, status.
	HTTPRequests *prometheus.CounterVec

	// HTTPSeconds measures gateway request latency.
	// Labels: method, path.
	HTTPSeconds *prometheus.HistogramVec
}

// NewMetrics creates and registers the metric catalog with reg. A nil reg
// uses the default Prometheus registerer. Call once per registry; repeated
// registration of the same names panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		registerer: reg,

		Messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_messages_total",
				Help: "Messages seen by the router, by channel and direction",
			},
			[]string{"channel", "direction"},
		),

		QueueDecisionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_queue_decisions_total",
				Help: "Admission verdicts by the per-conversation queue",
			},
			[]string{"decision"},
		),

		Generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_generations_total",
				Help: "Finished generations by status",
			},
			[]string{"status"},
		),

		GenerationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "parley_generation_duration_seconds",
				Help:    "Wall time per generation including tool calls",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),

		Tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_tokens_total",
				Help: "Model tokens consumed, by model and type",
			},
			[]string{"model", "type"},
		),

		ToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_tool_executions_total",
				Help: "Tool invocations by tool name and status",
			},
			[]string{"tool", "status"},
		),

		ToolSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parley_tool_execution_duration_seconds",
				Help:    "Tool execution time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_http_requests_total",
				Help: "Gateway HTTP requests by method, path, and status code",
			},
			[]string{"method", "path", "status"},
		),

		HTTPSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parley_http_request_duration_seconds",
				Help:    "Gateway HTTP request latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path"},
		),
	}
}

// MessageReceived counts one inbound message on a channel.
func (m *Metrics) MessageReceived(channel string) {
	m.Messages.WithLabelValues(channel, "inbound").Inc()
}

// MessageSent counts one outbound message on a channel. Notices and
// control acknowledgments count the same as generated replies.
func (m *Metrics) MessageSent(channel string) {
	m.Messages.WithLabelValues(channel, "outbound").Inc()
}

// QueueDecision counts one admission verdict.
func (m *Metrics) QueueDecision(decision string) {
	m.QueueDecisionCounter.WithLabelValues(decision).Inc()
}

// GenerationFinished records the outcome and duration of one generation.
func (m *Metrics) GenerationFinished(status string, elapsed time.Duration) {
	m.Generations.WithLabelValues(status).Inc()
	m.GenerationSeconds.Observe(elapsed.Seconds())
}

// AddTokens adds token counts for a model.
func (m *Metrics) AddTokens(model string, input, output int) {
	if input > 0 {
		m.Tokens.WithLabelValues(model, "input").Add(float64(input))
	}
	if output > 0 {
		m.Tokens.WithLabelValues(model, "output").Add(float64(output))
	}
}

// ToolExecuted records one tool invocation.
func (m *Metrics) ToolExecuted(tool, status string, elapsed time.Duration) {
	m.ToolExecutions.WithLabelValues(tool, status).Inc()
	m.ToolSeconds.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// RecordHTTPRequest records one gateway request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, path, status).Inc()
	m.HTTPSeconds.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// TrackActiveSessions registers a gauge that reports fn on every scrape.
// Call at most once per registry.
func (m *Metrics) TrackActiveSessions(fn func() float64) {
	promauto.With(m.registerer).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "parley_active_sessions",
			Help: "Current number of live sessions",
		},
		fn,
	)
}
