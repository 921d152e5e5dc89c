// Package hook lets extensions intercept the router pipeline at fixed
// points in a message's life: before it is processed, before the reply
// goes out, and after the reply has been delivered. Audit trails, drop
// filters, and outbound rewrites are all built on it.
package hook

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/parleyhq/parley/internal/agent"
	"github.com/parleyhq/parley/pkg/message"
)

// Position names the pipeline point a hook attaches to.
type Position string

const (
	// BeforeProcess runs after group policy and ahead of queue
	// admission. A hook here may drop the message outright.
	BeforeProcess Position = "before_process"

	// BeforeSend runs once generation has finished and the reply is
	// about to leave. A hook here may rewrite the outbound message.
	BeforeSend Position = "before_send"

	// AfterSend runs when the reply is sent and persisted. Failures at
	// this point are logged and never propagated.
	AfterSend Position = "after_send"
)

// Action is a hook's verdict on how the pipeline should proceed.
type Action int

const (
	// ActionContinue lets the pipeline carry on untouched.
	ActionContinue Action = iota

	// ActionDrop halts processing of the message. It is honored only
	// at BeforeProcess.
	ActionDrop

	// ActionModify records that the hook rewrote the outbound message.
	// It carries meaning only at BeforeSend.
	ActionModify
)

// SessionView exposes a read-only slice of session state to hooks.
// The interface avoids a circular dependency on the router package.
type SessionView interface {
	SessionID() string
	SessionKey() (channel, chatID, threadID string)
	CreatedAt() time.Time
	GetMetadata(key string) (any, bool)
}

// Context carries data available to hooks. One Context is shared across
// all three positions within a single pipeline execution.
type Context struct {
	Position Position
	Session  SessionView
	Inbound  message.InboundMessage

	// Outbound is set once generation has produced a reply, so only
	// BeforeSend and AfterSend see it.
	Outbound *message.OutboundMessage

	// Result is populated alongside Outbound.
	Result *agent.GenerateResult

	// Metadata persists across the three positions, giving hooks a
	// scratch space to pass data forward through the pipeline.
	Metadata map[string]any
	Logger   *slog.Logger
}

// PriorityLast sorts a hook behind every other hook at its position.
const PriorityLast = math.MaxInt

// Hook is the extension point the pipeline invokes.
type Hook interface {
	// Position reports where the hook attaches.
	Position() Position

	// Priority orders hooks within a position, lowest first.
	Priority() int

	// Execute runs the hook. The Action steers the pipeline; a non-nil
	// error is handled according to the position.
	Execute(ctx context.Context, hctx *Context) (Action, error)
}
