// Package message is the wire-neutral contract between channel adapters
// and the rest of the system: who said what, where, and in which media.
package message

// ChatType classifies a conversation.
type ChatType string

const (
	// ChatDM is a one-to-one conversation.
	ChatDM ChatType = "dm"
	// ChatGroup is a conversation with several participants.
	ChatGroup ChatType = "group"
	// ChatBroadcast is a one-to-many announcement channel.
	ChatBroadcast ChatType = "broadcast"
)

// Chat names the conversation a message belongs to.
type Chat struct {
	ID   string   `json:"id"`
	Type ChatType `json:"type"`
	// Title is the display name of a group or broadcast chat. Direct
	// chats leave it empty.
	Title string `json:"title,omitempty"`
}

// IsGroup reports whether the chat has multiple participants.
func (c Chat) IsGroup() bool {
	return c.Type == ChatGroup
}

// IsDirectMessage reports whether the chat is one-to-one.
func (c Chat) IsDirectMessage() bool {
	return c.Type == ChatDM
}

// Sender identifies the author of an inbound message.
type Sender struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	IsBot       bool   `json:"is_bot,omitempty"`
}

// Name picks the most presentable identifier: display name over username
// over raw id.
func (s Sender) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	if s.Username != "" {
		return s.Username
	}
	return s.ID
}

// Mentions holds mention metadata extracted from an inbound message.
type Mentions struct {
	// IDs lists the user identifiers that were mentioned.
	IDs []string `json:"ids,omitempty"`
	// IsMentioned is true when the bot itself was among them.
	IsMentioned bool `json:"is_mentioned,omitempty"`
}

// IsEmpty reports whether the Mentions carries no data at all.
func (m *Mentions) IsEmpty() bool {
	return m == nil || (len(m.IDs) == 0 && !m.IsMentioned)
}

// BlockType discriminates the variant stored in a ContentBlock.
type BlockType string

// Supported block types.
const (
	BlockText     BlockType = "text"
	BlockImage    BlockType = "image"
	BlockAudio    BlockType = "audio"
	BlockFile     BlockType = "file"
	BlockLocation BlockType = "location"
	BlockReaction BlockType = "reaction"
	BlockRaw      BlockType = "raw"
)
