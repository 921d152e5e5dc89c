// Package discord implements the Discord channel over a discordgo gateway
// session.
//
// It bridges Discord and the platform-agnostic message model, supporting:
//
//   - Inbound message conversion (text, attachments, voice notes, replies, mentions)
//   - Outbound dispatch with automatic chunking via channel.SplitMessage,
//     reply references, and URL images rendered as embeds
//   - Native history through ChannelMessages/ChannelMessage, preserving
//     attachments, embeds, and referenced messages
//   - Typing indicators via ChannelTyping
//   - Member role resolution to role names for permission filtering
//   - Bot identity from the gateway session state
//
// The module registers itself as "channel.discord" via init() and implements
// the full module lifecycle: Configure → Provision → Validate → Start → Stop.
// Reconnection is left to discordgo's built-in resume handling; the module
// only logs connection transitions.
package discord
