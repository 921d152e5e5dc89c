package message

import (
	"encoding/json"
	"slices"
	"strings"
)

// ContentBlock is a flat union over every content variant a message can
// carry. Type says which of the remaining fields mean anything.
type ContentBlock struct {
	Type BlockType `json:"type"`
	Text string    `json:"text,omitempty"`

	// Media fields for image, audio, and file blocks.
	URL      string `json:"url,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	FileName string `json:"file_name,omitempty"`
	Caption  string `json:"caption,omitempty"`
	IsVoice  bool   `json:"is_voice,omitempty"`

	// Location coordinates. Nil means unset.
	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`

	Emoji string          `json:"emoji,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON keeps the union honest: location blocks always serialize
// both coordinates, everything else serializes neither.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case BlockLocation:
		if b.Lat == nil {
			b.Lat = new(float64)
		}
		if b.Lon == nil {
			b.Lon = new(float64)
		}
	default:
		b.Lat, b.Lon = nil, nil
	}
	type bare ContentBlock
	return json.Marshal(bare(b))
}

// NewTextBlock returns a text block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// NewImageBlock returns an image block referencing url.
func NewImageBlock(url, mimeType string) ContentBlock {
	return ContentBlock{Type: BlockImage, URL: url, MIMEType: mimeType}
}

// NewAudioBlock creates an audio content block; isVoice marks recorded
// voice notes as opposed to audio files.
func NewAudioBlock(url, mimeType string, isVoice bool) ContentBlock {
	return ContentBlock{Type: BlockAudio, URL: url, MIMEType: mimeType, IsVoice: isVoice}
}

// NewFileBlock returns a file block.
func NewFileBlock(url, mimeType, fileName string) ContentBlock {
	return ContentBlock{Type: BlockFile, URL: url, MIMEType: mimeType, FileName: fileName}
}

// NewLocationBlock returns a location block at lat, lon.
func NewLocationBlock(lat, lon float64) ContentBlock {
	return ContentBlock{Type: BlockLocation, Lat: &lat, Lon: &lon}
}

// NewReactionBlock returns a reaction block for emoji.
func NewReactionBlock(emoji string) ContentBlock {
	return ContentBlock{Type: BlockReaction, Emoji: emoji}
}

// NewRawBlock creates a raw block around opaque channel payload. The
// bytes are copied so later mutation of data cannot reach the block.
func NewRawBlock(data json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockRaw, Data: slices.Clone(data)}
}

// joinedText concatenates every non-empty text block, newline separated.
func joinedText(blocks []ContentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type != BlockText || b.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(b.Text)
	}
	return sb.String()
}

// anyMedia reports whether the blocks include image, audio, file, or
// location content. Reactions and raw payloads do not count.
func anyMedia(blocks []ContentBlock) bool {
	return slices.ContainsFunc(blocks, func(b ContentBlock) bool {
		return b.Type == BlockImage || b.Type == BlockAudio ||
			b.Type == BlockFile || b.Type == BlockLocation
	})
}
