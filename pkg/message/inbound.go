package message

import (
	"encoding/json"
	"time"
)

// InboundMessage is one message as received from a channel adapter.
type InboundMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Channel names the adapter that produced the message; Sender,
	// Chat, ThreadID, and ReplyToID locate it inside that platform.
	Channel   string `json:"channel"`
	Sender    Sender `json:"sender"`
	Chat      Chat   `json:"chat"`
	ThreadID  string `json:"thread_id,omitempty"`
	ReplyToID string `json:"reply_to_id,omitempty"`

	Blocks   []ContentBlock `json:"blocks"`
	Mentions *Mentions      `json:"mentions,omitempty"`

	// Raw carries the platform payload verbatim. The router checks its
	// size and nesting depth before the message is processed.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// MarshalJSON drops a Mentions value that carries nothing, so empty
// mention metadata never appears on the wire.
func (m InboundMessage) MarshalJSON() ([]byte, error) {
	type bare InboundMessage
	if m.Mentions.IsEmpty() {
		m.Mentions = nil
	}
	return json.Marshal(bare(m))
}

// TextContent returns all text blocks joined with newlines.
func (m *InboundMessage) TextContent() string {
	return joinedText(m.Blocks)
}

// HasMedia reports whether the message carries any media blocks.
func (m *InboundMessage) HasMedia() bool {
	return anyMedia(m.Blocks)
}

// IsGroup reports whether the message came from a group chat.
func (m *InboundMessage) IsGroup() bool {
	return m.Chat.IsGroup()
}

// IsDirectMessage reports whether the message came from a DM.
func (m *InboundMessage) IsDirectMessage() bool {
	return m.Chat.IsDirectMessage()
}
