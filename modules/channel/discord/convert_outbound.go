package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/parleyhq/parley/internal/channel"
	"github.com/parleyhq/parley/pkg/message"
)

// sendOutbound splits an outbound message into Discord-sized chunks and
// sends each one. The reply reference is attached to the first chunk only;
// repeating it would render a quote header on every follow-up message.
func (d *Discord) sendOutbound(ctx context.Context, msg message.OutboundMessage) error {
	chunks := channel.SplitMessage(msg, channel.ChunkConfig{
		MaxLength:      d.config.MaxMessageLength,
		PreserveBlocks: true,
	})

	for i, chunk := range chunks {
		send := buildMessageSend(chunk, i == 0)
		if send == nil {
			continue
		}

		target := chunk.Chat.ID
		if chunk.ThreadID != "" {
			target = chunk.ThreadID
		}

		if _, err := d.rest.ChannelMessageSendComplex(target, send, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord: send message to %s: %w", target, err)
		}
	}
	return nil
}

// buildMessageSend assembles the Discord payload for one chunk. Returns nil
// when the chunk carries nothing Discord can deliver.
func buildMessageSend(chunk message.OutboundMessage, first bool) *discordgo.MessageSend {
	var lines []string
	var embeds []*discordgo.MessageEmbed

	for _, block := range chunk.Blocks {
		switch block.Type {
		case message.BlockText:
			if block.Text != "" {
				lines = append(lines, block.Text)
			}

		case message.BlockImage:
			// Discord renders remote images through embeds.
			embeds = append(embeds, &discordgo.MessageEmbed{
				Image: &discordgo.MessageEmbedImage{URL: block.URL},
			})
			if block.Caption != "" {
				lines = append(lines, block.Caption)
			}

		case message.BlockAudio, message.BlockFile:
			// Remote files cannot be attached by URL; deliver the link.
			if block.URL != "" {
				lines = append(lines, block.URL)
			}
			if block.Caption != "" {
				lines = append(lines, block.Caption)
			}

		case message.BlockLocation:
			if block.Lat != nil && block.Lon != nil {
				lines = append(lines, fmt.Sprintf("https://maps.google.com/?q=%f,%f", *block.Lat, *block.Lon))
			}

		default:
			// BlockReaction and BlockRaw have no outbound rendering.
			continue
		}
	}

	content := strings.Join(lines, "\n")
	if content == "" && len(embeds) == 0 {
		return nil
	}

	send := &discordgo.MessageSend{
		Content: content,
		Embeds:  embeds,
		// The model's reply must never ping roles or everyone.
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
		},
	}

	if first && chunk.ReplyToID != "" {
		send.Reference = &discordgo.MessageReference{
			MessageID: chunk.ReplyToID,
			ChannelID: chunk.Chat.ID,
		}
	}

	if chunk.Hints != nil {
		if chunk.Hints.DisableNotification {
			send.Flags |= discordgo.MessageFlagsSuppressNotifications
		}
		// Suppressing embeds would also drop explicit image embeds.
		if chunk.Hints.DisablePreview && len(embeds) == 0 {
			send.Flags |= discordgo.MessageFlagsSuppressEmbeds
		}
	}

	return send
}
