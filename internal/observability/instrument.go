package observability

import (
	"context"
	"encoding/json"
	"time"

	"github.com/parleyhq/parley/internal/tool"
	"github.com/parleyhq/parley/internal/usage"
)

// InstrumentTool wraps t so every execution records a counter increment
// and a duration sample. A nil Metrics returns t unchanged.
func InstrumentTool(t tool.Tool, m *Metrics) tool.Tool {
	if m == nil {
		return t
	}
	return &instrumentedTool{Tool: t, metrics: m}
}

type instrumentedTool struct {
	tool.Tool
	metrics *Metrics
}

func (t *instrumentedTool) Execute(ctx context.Context, args json.RawMessage, env tool.ExecutionEnv) (tool.Output, error) {
	start := time.Now()
	out, err := t.Tool.Execute(ctx, args, env)

	status := "success"
	if err != nil || out.IsError {
		status = "error"
	}
	t.metrics.ToolExecuted(t.Tool.Name(), status, time.Since(start))
	return out, err
}

// InstrumentRecorder wraps next so token counts flow into the metric
// catalog before being persisted. A nil Metrics returns next unchanged.
func InstrumentRecorder(next usage.Recorder, m *Metrics) usage.Recorder {
	if m == nil {
		return next
	}
	return &instrumentedRecorder{next: next, metrics: m}
}

type instrumentedRecorder struct {
	next    usage.Recorder
	metrics *Metrics
}

func (r *instrumentedRecorder) Record(ctx context.Context, e usage.Entry) error {
	r.metrics.AddTokens(e.Model, e.InputTokens, e.OutputTokens)
	return r.next.Record(ctx, e)
}

func (r *instrumentedRecorder) Totals(ctx context.Context, day string) ([]usage.Entry, error) {
	return r.next.Totals(ctx, day)
}
