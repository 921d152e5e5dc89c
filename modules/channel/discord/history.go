package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/parleyhq/parley/internal/channel"
	"github.com/parleyhq/parley/pkg/message"
)

// FetchHistory implements channel.HistoryProvider. Discord returns messages
// newest first, which matches the interface contract.
func (d *Discord) FetchHistory(ctx context.Context, chatID string, limit int) ([]message.HistoryEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}

	msgs, err := d.rest.ChannelMessages(chatID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: fetch history for %s: %w", chatID, err)
	}

	entries := make([]message.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		entries = append(entries, toHistoryEntry(m))
	}
	return entries, nil
}

// FetchByID implements channel.HistoryProvider.
func (d *Discord) FetchByID(ctx context.Context, chatID, messageID string) (*message.HistoryEntry, error) {
	m, err := d.rest.ChannelMessage(chatID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		if isUnknownMessage(err) {
			return nil, fmt.Errorf("%w: %s", channel.ErrMessageNotFound, messageID)
		}
		return nil, fmt.Errorf("discord: fetch message %s: %w", messageID, err)
	}

	entry := toHistoryEntry(m)
	return &entry, nil
}

// isUnknownMessage reports whether the API rejected the lookup because the
// message does not exist (deleted, expired, or never sent).
func isUnknownMessage(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMessage {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

// toHistoryEntry converts a Discord message into a platform-agnostic history
// entry, carrying attachments, embeds, and the referenced message when the
// API inlined one.
func toHistoryEntry(m *discordgo.Message) message.HistoryEntry {
	entry := message.HistoryEntry{
		ID:        m.ID,
		ChatID:    m.ChannelID,
		Author:    convertSender(m.Author),
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}

	for _, att := range m.Attachments {
		if att == nil {
			continue
		}
		entry.Attachments = append(entry.Attachments, message.Attachment{
			URL:         att.URL,
			Filename:    att.Filename,
			ContentType: att.ContentType,
		})
	}

	entry.Embeds = convertEmbeds(m.Embeds)

	if m.MessageReference != nil {
		entry.ReferenceID = m.MessageReference.MessageID
	}
	if m.ReferencedMessage != nil {
		ref := toHistoryEntry(m.ReferencedMessage)
		entry.Referenced = &ref
	}

	return entry
}

// convertEmbeds maps Discord embeds to platform-agnostic ones.
func convertEmbeds(embeds []*discordgo.MessageEmbed) []message.Embed {
	if len(embeds) == 0 {
		return nil
	}
	out := make([]message.Embed, 0, len(embeds))
	for _, e := range embeds {
		if e == nil {
			continue
		}
		embed := message.Embed{
			Title:       e.Title,
			Description: e.Description,
			URL:         e.URL,
		}
		for _, f := range e.Fields {
			if f == nil {
				continue
			}
			embed.Fields = append(embed.Fields, message.EmbedField{
				Name:  f.Name,
				Value: f.Value,
			})
		}
		out = append(out, embed)
	}
	return out
}
