package ctxengine

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/provider"
	"github.com/parleyhq/parley/internal/transcribe"
	"github.com/parleyhq/parley/pkg/message"
)

// turnPayload is the structured content of a user turn. The model receives
// it serialized as JSON so authorship and media survive in group chats.
type turnPayload struct {
	Author      string            `json:"author,omitempty"`
	Content     string            `json:"content,omitempty"`
	Timestamp   string            `json:"timestamp,omitempty"`
	Attachments []string          `json:"attachments,omitempty"`
	Transcripts []string          `json:"voice_transcripts,omitempty"`
	Embeds      []embedPayload    `json:"embeds,omitempty"`
	Reference   *referencePayload `json:"referenced_message,omitempty"`
}

type embedPayload struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	URL         string              `json:"url,omitempty"`
	Fields      []embedFieldPayload `json:"fields,omitempty"`
}

type embedFieldPayload struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type referencePayload struct {
	Author  string `json:"author,omitempty"`
	Content string `json:"content"`
}

// buildTurn converts one history entry into a model turn.
//
// The bot's own entries become plain assistant turns so replayed content
// matches what the model actually produced. Everything else becomes a user
// turn carrying the serialized payload, multi-part when images are attached.
func (b *Builder) buildTurn(ctx context.Context, req BuildRequest, window map[string]*message.HistoryEntry, entry *message.HistoryEntry) provider.LLMMessage {
	if entry.Author.ID == req.BotID {
		return provider.LLMMessage{
			Role:    provider.MessageRoleAssistant,
			Content: entry.Content,
		}
	}

	payload := turnPayload{
		Author:  entry.Author.Name(),
		Content: entry.Content,
	}
	if !entry.Timestamp.IsZero() {
		payload.Timestamp = entry.Timestamp.UTC().Format(time.RFC3339)
	}

	var images []string
	for _, att := range entry.Attachments {
		if b.isVoiceNote(att) {
			if text, ok := b.transcribeVoiceNote(ctx, att); ok {
				payload.Transcripts = append(payload.Transcripts, text)
			}
			continue
		}
		if att.IsImage() {
			images = append(images, att.URL)
		}
		payload.Attachments = append(payload.Attachments, att.URL)
	}

	for _, e := range entry.Embeds {
		payload.Embeds = append(payload.Embeds, convertEmbed(e))
	}

	if ref := b.resolveReference(ctx, req, window, entry); ref != nil {
		payload.Reference = &referencePayload{
			Author:  ref.Author.Name(),
			Content: ref.Content,
		}
	}

	content := serializePayload(payload, entry.Content)

	turn := provider.LLMMessage{
		Role:    provider.MessageRoleUser,
		Content: content,
	}
	if len(images) > 0 {
		parts := make([]provider.ContentPart, 0, len(images)+1)
		for _, url := range images {
			parts = append(parts, provider.ContentPart{
				Type:     provider.ContentPartImageURL,
				ImageURL: url,
			})
		}
		parts = append(parts, provider.ContentPart{
			Type: provider.ContentPartText,
			Text: content,
		})
		turn.ContentParts = parts
	}
	return turn
}

// isVoiceNote matches the reserved voice-note filename, case-insensitively.
func (b *Builder) isVoiceNote(att message.Attachment) bool {
	return strings.EqualFold(att.Filename, b.config.VoiceNoteFilename)
}

// transcribeVoiceNote downloads and transcribes a voice note. Failures are
// logged and reported as absent; the turn is built without the transcript.
func (b *Builder) transcribeVoiceNote(ctx context.Context, att message.Attachment) (string, bool) {
	if b.transcriber == nil {
		b.log.Debug("context: voice note skipped, no transcriber", "url", att.URL)
		return "", false
	}

	audio, err := transcribe.FetchAudio(ctx, b.client, b.urlFilter, att.URL)
	if err != nil {
		b.log.Warn("context: voice note fetch failed", "url", att.URL, "error", err)
		return "", false
	}

	text, err := b.transcriber.Transcribe(ctx, bytes.NewReader(audio), att.Filename)
	if err != nil {
		b.log.Warn("context: transcription failed", "url", att.URL, "error", err)
		return "", false
	}
	return text, true
}

// resolveReference finds the message an entry quotes: the pre-resolved
// pointer first, then the fetched window, then a FetchByID round trip. A
// failed fetch is logged and the reference omitted.
func (b *Builder) resolveReference(ctx context.Context, req BuildRequest, window map[string]*message.HistoryEntry, entry *message.HistoryEntry) *message.HistoryEntry {
	if entry.Referenced != nil {
		return entry.Referenced
	}
	if entry.ReferenceID == "" {
		return nil
	}
	if ref, ok := window[entry.ReferenceID]; ok {
		return ref
	}
	if req.Fetcher == nil {
		return nil
	}

	ref, err := req.Fetcher.FetchByID(ctx, req.ChatID, entry.ReferenceID)
	if err != nil {
		b.log.Warn("context: referenced message fetch failed",
			"message_id", entry.ReferenceID, "error", err)
		return nil
	}
	return ref
}

func convertEmbed(e message.Embed) embedPayload {
	out := embedPayload{
		Title:       e.Title,
		Description: e.Description,
		URL:         e.URL,
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, embedFieldPayload{Name: f.Name, Value: f.Value})
	}
	return out
}

// serializePayload marshals the payload, falling back to the raw text if
// marshalling somehow fails.
func serializePayload(p turnPayload, fallback string) string {
	data, err := json.Marshal(p)
	if err != nil {
		return fallback
	}
	return string(data)
}
