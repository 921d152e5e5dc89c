// Package channel connects messaging platforms to the conversation router:
// platform messages flow in through a per-channel inbox callback, and router
// replies flow back out through Send. The package also carries the plumbing
// every platform needs, including allow-list filtering, reply chunking,
// streaming edits, and typing indicators.
package channel

import (
	"context"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/pkg/message"
)

// Channel is one messaging platform connection. Discord under
// modules/channel is the reference implementation.
//
// The router installs the inbox during wiring; once started, the channel
// pushes platform messages through that inbox and delivers router replies
// with Send. Implementations wanting incremental delivery or typing
// feedback add StreamingChannel or TypingChannel on top.
type Channel interface {
	core.Module

	// Send delivers one outbound message to the platform.
	Send(ctx context.Context, msg message.OutboundMessage) error

	// SetInbox installs the router callback for inbound messages. Wiring
	// calls it exactly once, before Start.
	SetInbox(fn func(msg message.InboundMessage) error)
}
