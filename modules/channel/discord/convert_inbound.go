package discord

import (
	"encoding/json"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/parleyhq/parley/pkg/message"
)

// voiceNoteFilename is the reserved attachment name Discord assigns to
// voice messages. Downstream consumers key transcription off it.
const voiceNoteFilename = "voice-message.ogg"

// convertInbound transforms a gateway message into a platform-agnostic
// InboundMessage tagged with the given channel name.
func convertInbound(m *discordgo.Message, channelName, botID string) message.InboundMessage {
	raw, _ := json.Marshal(m)

	inbound := message.InboundMessage{
		ID:        m.ID,
		Timestamp: m.Timestamp,
		Channel:   channelName,
		Sender:    convertSender(m.Author),
		Chat:      convertChat(m),
		Blocks:    convertBlocks(m),
		Mentions:  extractMentions(m, botID),
		Raw:       raw,
	}

	if m.MessageReference != nil {
		inbound.ReplyToID = m.MessageReference.MessageID
	}

	return inbound
}

// convertSender maps a Discord user to a platform-agnostic Sender.
func convertSender(user *discordgo.User) message.Sender {
	if user == nil {
		return message.Sender{}
	}
	return message.Sender{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.GlobalName,
		IsBot:       user.Bot,
	}
}

// convertChat maps the message's channel to a platform-agnostic Chat. A
// message without a guild is a DM; everything else (text channels and
// threads alike) is a group keyed by its own channel ID.
func convertChat(m *discordgo.Message) message.Chat {
	chatType := message.ChatGroup
	if m.GuildID == "" {
		chatType = message.ChatDM
	}
	return message.Chat{
		ID:   m.ChannelID,
		Type: chatType,
	}
}

// convertBlocks builds content blocks from a Discord message: one block per
// attachment, followed by the message text.
func convertBlocks(m *discordgo.Message) []message.ContentBlock {
	var blocks []message.ContentBlock

	for _, att := range m.Attachments {
		if att == nil {
			continue
		}
		blocks = append(blocks, attachmentBlock(m, att))
	}

	if m.Content != "" {
		blocks = append(blocks, message.NewTextBlock(m.Content))
	}

	return blocks
}

// attachmentBlock maps one attachment to a content block by its content type.
func attachmentBlock(m *discordgo.Message, att *discordgo.MessageAttachment) message.ContentBlock {
	switch {
	case strings.HasPrefix(att.ContentType, "image/"):
		return message.NewImageBlock(att.URL, att.ContentType)
	case strings.HasPrefix(att.ContentType, "audio/"):
		return message.NewAudioBlock(att.URL, att.ContentType, isVoiceNote(m, att))
	default:
		return message.NewFileBlock(att.URL, att.ContentType, att.Filename)
	}
}

// isVoiceNote reports whether the attachment is a Discord voice message,
// either by the message flag or by the reserved filename.
func isVoiceNote(m *discordgo.Message, att *discordgo.MessageAttachment) bool {
	if m.Flags&discordgo.MessageFlagsIsVoiceMessage != 0 {
		return true
	}
	return strings.EqualFold(att.Filename, voiceNoteFilename)
}

// extractMentions collects mentioned user IDs and flags whether the bot
// itself was addressed.
func extractMentions(m *discordgo.Message, botID string) *message.Mentions {
	if len(m.Mentions) == 0 {
		return nil
	}

	var mentions message.Mentions
	for _, user := range m.Mentions {
		if user == nil {
			continue
		}
		mentions.IDs = append(mentions.IDs, user.ID)
		if botID != "" && user.ID == botID {
			mentions.IsMentioned = true
		}
	}

	if mentions.IsEmpty() {
		return nil
	}
	return &mentions
}
