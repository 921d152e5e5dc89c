// Package tooltest provides test doubles for the tool package.
package tooltest

import (
	"cmp"
	"context"
	"encoding/json"
	"sync"

	"github.com/parleyhq/parley/internal/tool"
)

// MockTool implements tool.Tool for tests. Metadata comes from the value
// fields; NameFunc and ExecuteFunc take precedence when set. The zero
// value is usable: a read-only tool named "mock-tool" whose Execute
// reports "ok".
type MockTool struct {
	NameFunc    func() string
	ExecuteFunc func(ctx context.Context, args json.RawMessage, env tool.ExecutionEnv) (tool.Output, error)

	Desc      string
	RawSchema json.RawMessage
	ScopeList []tool.Scope
	Access    tool.AccessLevel

	mu    sync.Mutex
	calls int
}

var _ tool.Tool = (*MockTool)(nil)

// Name implements tool.Tool.
func (m *MockTool) Name() string {
	if m.NameFunc == nil {
		return "mock-tool"
	}
	return m.NameFunc()
}

// Description implements tool.Tool.
func (m *MockTool) Description() string {
	return cmp.Or(m.Desc, "a mock tool")
}

// Schema implements tool.Tool.
func (m *MockTool) Schema() json.RawMessage {
	if m.RawSchema == nil {
		return json.RawMessage(`{}`)
	}
	return m.RawSchema
}

// Scopes implements tool.Tool. A nil ScopeList means read-only; an empty
// non-nil list declares no scopes at all.
func (m *MockTool) Scopes() []tool.Scope {
	if m.ScopeList == nil {
		return []tool.Scope{tool.ScopeReadOnly}
	}
	return m.ScopeList
}

// DefaultAccess implements tool.Tool.
func (m *MockTool) DefaultAccess() tool.AccessLevel {
	return cmp.Or(m.Access, tool.AccessAllow)
}

// Execute implements tool.Tool, counting every invocation.
func (m *MockTool) Execute(ctx context.Context, args json.RawMessage, env tool.ExecutionEnv) (tool.Output, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.ExecuteFunc == nil {
		return tool.Output{Content: "ok"}, nil
	}
	return m.ExecuteFunc(ctx, args, env)
}

// Calls returns how many times Execute ran.
func (m *MockTool) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// SimpleTool returns a fully populated tool named name with the given
// default access level.
func SimpleTool(name string, access tool.AccessLevel) *MockTool {
	run := func(context.Context, json.RawMessage, tool.ExecutionEnv) (tool.Output, error) {
		return tool.Output{Content: "executed: " + name}, nil
	}
	return &MockTool{
		NameFunc:    func() string { return name },
		ExecuteFunc: run,
		Desc:        "simple test tool: " + name,
		RawSchema:   json.RawMessage(`{"type":"object"}`),
		Access:      access,
	}
}

// ScopedTool returns a tool declaring exactly the given scopes, including
// none at all.
func ScopedTool(name string, scopes ...tool.Scope) *MockTool {
	return &MockTool{
		NameFunc:  func() string { return name },
		ScopeList: append([]tool.Scope{}, scopes...),
	}
}
