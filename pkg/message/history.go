package message

import "time"

// HistoryEntry is one past message as fetched from a channel's native
// history. It is produced by channel adapters and read-only to consumers.
type HistoryEntry struct {
	ID          string        `json:"id"`
	ChatID      string        `json:"chat_id"`
	Author      Sender        `json:"author"`
	Content     string        `json:"content"`
	Timestamp   time.Time     `json:"timestamp"`
	Attachments []Attachment  `json:"attachments,omitempty"`
	Embeds      []Embed       `json:"embeds,omitempty"`
	ReferenceID string        `json:"reference_id,omitempty"`
	Referenced  *HistoryEntry `json:"referenced,omitempty"`
}

// Attachment is a file attached to a history entry.
type Attachment struct {
	URL         string `json:"url"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// IsImage reports whether the attachment carries an image content type.
func (a Attachment) IsImage() bool {
	return len(a.ContentType) >= 6 && a.ContentType[:6] == "image/"
}

// Embed is a structured metadata block attached to a history entry,
// such as a link preview or a rich card.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

// EmbedField is one name/value pair inside an embed.
type EmbedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
