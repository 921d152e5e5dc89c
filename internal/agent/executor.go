package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/provider"
	"github.com/parleyhq/parley/internal/tool"
)

// ToolExecutorConfig holds the dependencies for tool execution.
type ToolExecutorConfig struct {
	Registry  *tool.Registry
	PolicyCfg tool.PolicyConfig
	PolicyCtx tool.PolicyContext
	Env       tool.ExecutionEnv
}

// ToolExecutor fans a batch of tool calls out in parallel and shields the
// loop from tool panics.
type ToolExecutor struct {
	cfg ToolExecutorConfig
}

// NewToolExecutor creates a ToolExecutor from the given configuration.
func NewToolExecutor(cfg ToolExecutorConfig) *ToolExecutor {
	return &ToolExecutor{cfg: cfg}
}

// Execute runs every call concurrently and returns records in call order.
func (e *ToolExecutor) Execute(ctx context.Context, calls []provider.ToolCall) []ToolCallRecord {
	records := make([]ToolCallRecord, len(calls))

	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i, call := range calls {
		go func() {
			defer wg.Done()
			records[i] = e.invoke(ctx, call)
		}()
	}
	wg.Wait()

	return records
}

// invoke runs one call through the registry and converts both failure
// modes, an error return or a panic, into an error-flagged record.
func (e *ToolExecutor) invoke(ctx context.Context, call provider.ToolCall) (rec ToolCallRecord) {
	rec.ID = call.ID
	rec.Name = call.Name
	rec.Arguments = call.Arguments

	began := time.Now()
	defer func() {
		rec.Duration = time.Since(began)
		r := recover()
		if r == nil {
			return
		}
		rec.Panicked = true
		rec.Output = tool.Output{
			IsError: true,
			Content: fmt.Sprintf("tool panicked: %v", r),
		}
	}()

	// A policy context riding on ctx wins over the configured fallback;
	// group conversations carry their scope this way.
	pctx := e.cfg.PolicyCtx
	if v, ok := tool.PolicyContextFrom(ctx); ok {
		pctx = v
	}

	out, err := e.cfg.Registry.Execute(ctx, call.Name, call.Arguments, e.cfg.PolicyCfg, pctx, e.cfg.Env)
	if err != nil {
		rec.Output = tool.Output{Content: err.Error(), IsError: true}
		return rec
	}

	rec.Output = out
	return rec
}
