package router

import (
	"context"
	"time"

	"github.com/parleyhq/parley/internal/agent"
	"github.com/parleyhq/parley/internal/channel"
	ctxengine "github.com/parleyhq/parley/internal/context"
	"github.com/parleyhq/parley/internal/hook"
	"github.com/parleyhq/parley/internal/provider"
	"github.com/parleyhq/parley/internal/tool"
	"github.com/parleyhq/parley/pkg/message"
)

// ResponseSender pushes outbound messages back to a channel.
type ResponseSender interface {
	Send(ctx context.Context, msg message.OutboundMessage) error
}

// Generator runs one model generation to completion, tool calls included.
// Implemented by agent.Driver.
type Generator interface {
	Generate(ctx context.Context, req agent.GenerateRequest) (agent.GenerateResult, error)
}

// ContextBuilder assembles the model-ready message window for a
// conversation. Implemented by ctxengine.Builder.
type ContextBuilder interface {
	Build(ctx context.Context, req ctxengine.BuildRequest) (ctxengine.BuildResult, error)
}

// PromptSource supplies the system prompt parts for a message. Implemented
// by workspace.Prompt.
type PromptSource interface {
	SystemParts(msg message.InboundMessage) []string
}

// ChannelLookup finds a registered channel by name. Implemented by
// channel.Dispatcher.
type ChannelLookup interface {
	Get(name string) (channel.Channel, bool)
}

// Observer receives routing lifecycle events. Implemented by
// observability.Metrics. Methods are called on the worker goroutine and
// must not block.
type Observer interface {
	MessageReceived(channel string)
	MessageSent(channel string)
	QueueDecision(decision string)
	GenerationFinished(status string, elapsed time.Duration)
}

// toolDefinitions converts registry tools to provider wire definitions.
func toolDefinitions(tools []tool.Tool) []provider.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]provider.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, provider.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return defs
}

// historyEntryFromInbound converts the trigger message into a history
// entry, used when the platform fetch fails or omits the trigger.
func historyEntryFromInbound(msg message.InboundMessage) message.HistoryEntry {
	entry := message.HistoryEntry{
		ID:          msg.ID,
		ChatID:      msg.Chat.ID,
		Author:      msg.Sender,
		Content:     msg.TextContent(),
		Timestamp:   msg.Timestamp,
		ReferenceID: msg.ReplyToID,
	}
	for _, block := range msg.Blocks {
		switch block.Type {
		case message.BlockImage, message.BlockAudio, message.BlockFile:
			entry.Attachments = append(entry.Attachments, message.Attachment{
				URL:         block.URL,
				Filename:    block.FileName,
				ContentType: block.MIMEType,
			})
		}
	}
	return entry
}

// buildOutbound creates an outbound text response preserving thread/reply context.
func buildOutbound(original message.InboundMessage, text string) message.OutboundMessage {
	reply := message.NewTextMessage(original.Chat, text)
	reply.Channel = original.Channel
	reply.ThreadID = original.ThreadID
	reply.ReplyToID = original.ID
	return reply
}

// sessionViewAdapter exposes a Session to hooks read-only, keeping hook
// implementations off the concrete Session type.
type sessionViewAdapter struct {
	session *Session
}

var _ hook.SessionView = (*sessionViewAdapter)(nil)

// SessionID returns the stable identifier of the session.
func (a *sessionViewAdapter) SessionID() string {
	return a.session.ID
}

// SessionKey splits the key into channel, chatID, and threadID.
func (a *sessionViewAdapter) SessionKey() (channel, chatID, threadID string) {
	return a.session.Key.Channel, a.session.Key.ChatID, a.session.Key.ThreadID
}

// CreatedAt reports when the session started.
func (a *sessionViewAdapter) CreatedAt() time.Time {
	return a.session.CreatedAt
}

// GetMetadata returns a single metadata value without exposing the
// underlying map for mutation. Reading a nil map is fine.
func (a *sessionViewAdapter) GetMetadata(key string) (any, bool) {
	v, ok := a.session.Metadata[key]
	return v, ok
}
