// Package hooktest holds shared test doubles for hook pipelines.
package hooktest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/parleyhq/parley/internal/hook"
)

// MockHook is a field-configured hook.Hook.
type MockHook struct {
	PositionVal hook.Position
	PriorityVal int

	// ExecuteFunc supplies the behavior. Nil continues without
	// touching the context.
	ExecuteFunc func(ctx context.Context, hctx *hook.Context) (hook.Action, error)

	calls atomic.Int64
}

var _ hook.Hook = (*MockHook)(nil)

func (m *MockHook) Position() hook.Position { return m.PositionVal }
func (m *MockHook) Priority() int           { return m.PriorityVal }

// Execute counts the call, then delegates to ExecuteFunc.
func (m *MockHook) Execute(ctx context.Context, hctx *hook.Context) (hook.Action, error) {
	m.calls.Add(1)
	if m.ExecuteFunc == nil {
		return hook.ActionContinue, nil
	}
	return m.ExecuteFunc(ctx, hctx)
}

// CallCount reports how many times Execute ran.
func (m *MockHook) CallCount() int { return int(m.calls.Load()) }

// MockSessionView is a field-backed hook.SessionView.
type MockSessionView struct {
	SessionIDVal string

	// Channel, ChatID, and ThreadID come back from SessionKey.
	Channel  string
	ChatID   string
	ThreadID string

	CreatedAtVal time.Time
	MetadataMap  map[string]any
}

var _ hook.SessionView = (*MockSessionView)(nil)

func (m *MockSessionView) SessionID() string    { return m.SessionIDVal }
func (m *MockSessionView) CreatedAt() time.Time { return m.CreatedAtVal }

func (m *MockSessionView) SessionKey() (string, string, string) {
	return m.Channel, m.ChatID, m.ThreadID
}

func (m *MockSessionView) GetMetadata(key string) (any, bool) {
	v, ok := m.MetadataMap[key]
	return v, ok
}
