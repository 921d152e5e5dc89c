package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/parleyhq/parley/internal/security"
)

// Schema pairs a tool name with its JSON Schema document.
type Schema struct {
	Name string

	// Schema describes the tool's argument object.
	Schema json.RawMessage
}

// Registry holds registered tools and orchestrates their execution through
// the access policy. Each app carries its own instance rather than sharing
// a package-level one.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]Tool
	rateLimiter *security.RateLimiter
	auditLogger *security.AuditLogger
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// SetAuditLogger wires the audit trail for tool executions.
func (r *Registry) SetAuditLogger(logger *security.AuditLogger) {
	r.mu.Lock()
	r.auditLogger = logger
	r.mu.Unlock()
}

// SetRateLimiter wires rate limiting for tool executions.
func (r *Registry) SetRateLimiter(limiter *security.RateLimiter) {
	r.mu.Lock()
	r.rateLimiter = limiter
	r.mu.Unlock()
}

// Register adds a tool under its trimmed name.
// It returns ErrNoScopes if the tool declares no scopes,
// and ErrDuplicateTool if a tool with the same name is already registered.
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name())
	switch {
	case name == "":
		return ErrEmptyToolName
	case len(t.Scopes()) == 0:
		return fmt.Errorf("%w: %s", ErrNoScopes, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.tools[name]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	return nil
}

// Get looks up a tool by name, returning ErrToolNotFound for unknown names.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.tools))
	for _, name := range slices.Sorted(maps.Keys(r.tools)) {
		out = append(out, r.tools[name])
	}
	return out
}

// Schemas lists every registered tool's schema, sorted by name.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := slices.Sorted(maps.Keys(r.tools))
	out := make([]Schema, len(names))
	for i, name := range names {
		out[i] = Schema{Name: name, Schema: r.tools[name].Schema()}
	}
	return out
}

// Names lists registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.tools))
}

// auditor wraps an optional AuditLogger so call sites skip nil checks.
type auditor struct {
	log *security.AuditLogger
}

func (a auditor) record(ev security.AuditEvent) {
	if a.log != nil {
		a.log.Log(ev)
	}
}

// Execute orchestrates tool execution: lookup, rate limit, access
// resolution, execution, audit.
func (r *Registry) Execute(
	ctx context.Context, name string, args json.RawMessage,
	policyCfg PolicyConfig, policyCtx PolicyContext, env ExecutionEnv,
) (Output, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	rl, audit := r.rateLimiter, auditor{r.auditLogger}
	r.mu.RUnlock()
	if !ok {
		return Output{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if rl != nil {
		// One process-wide window; tool calls fan out across sessions.
		if err := rl.Allow(security.LimitToolCall, ""); err != nil {
			audit.record(security.AuditEvent{
				Type:     security.EventRateLimit,
				ToolName: name,
				Detail:   "tool_call rate limit exceeded",
			})
			return Output{}, fmt.Errorf("tool %s: %w", name, err)
		}
	}

	audit.record(security.AuditEvent{
		Type:     security.EventToolCall,
		ToolName: name,
		Detail:   truncateForAudit(string(args)),
	})

	if level := ResolveAccess(policyCfg, policyCtx, t); level != AccessAllow {
		return Output{}, fmt.Errorf("%w: %s", ErrDenied, name)
	}

	output, err := t.Execute(ctx, args, env)

	detail := truncateForAudit(output.Content)
	if err != nil {
		detail = "error: " + err.Error()
	}
	audit.record(security.AuditEvent{
		Type:     security.EventToolResult,
		ToolName: name,
		Detail:   detail,
		Metadata: map[string]string{
			"is_error": strconv.FormatBool(output.IsError || err != nil),
		},
	})

	return output, err
}

// maxAuditDetailLen caps detail strings recorded in the audit log so large
// tool payloads and results do not bloat it.
const maxAuditDetailLen = 4096

// truncateForAudit shortens s to maxAuditDetailLen, marking the cut. The cut
// backs up to a rune boundary so multi-byte characters never split.
func truncateForAudit(s string) string {
	if len(s) <= maxAuditDetailLen {
		return s
	}
	cut := maxAuditDetailLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
