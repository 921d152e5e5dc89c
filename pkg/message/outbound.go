package message

// OutboundMessage is one message on its way out through a channel.
type OutboundMessage struct {
	// Channel names the registered channel that delivers the message;
	// Chat, ThreadID, and ReplyToID address it inside that platform.
	Channel   string `json:"channel"`
	Chat      Chat   `json:"chat"`
	ThreadID  string `json:"thread_id,omitempty"`
	ReplyToID string `json:"reply_to_id,omitempty"`

	Blocks []ContentBlock `json:"blocks"`
	Hints  *OutboundHints `json:"hints,omitempty"`
}

// OutboundHints are optional delivery preferences a channel may honor or
// ignore. The zero value sets nothing.
type OutboundHints struct {
	DisablePreview      bool `json:"disable_preview,omitempty"`
	DisableNotification bool `json:"disable_notification,omitempty"`

	// ParseMode selects platform text markup, such as "markdown".
	ParseMode string `json:"parse_mode,omitempty"`
}

// NewTextMessage wraps text in a single-block outbound message. The
// caller fills in Channel before handing it to a dispatcher.
func NewTextMessage(chat Chat, text string) OutboundMessage {
	return OutboundMessage{Chat: chat, Blocks: []ContentBlock{NewTextBlock(text)}}
}

// TextContent returns all text blocks joined with newlines.
func (m *OutboundMessage) TextContent() string {
	return joinedText(m.Blocks)
}

// HasMedia reports whether the message carries any media blocks.
func (m *OutboundMessage) HasMedia() bool {
	return anyMedia(m.Blocks)
}
