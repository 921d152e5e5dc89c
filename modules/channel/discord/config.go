package discord

import "fmt"

// maxDiscordMessageLength is the hard limit Discord enforces per message.
const maxDiscordMessageLength = 2000

// defaultHistoryLimit bounds FetchHistory when the caller asks for more
// than the Discord API returns in one page.
const defaultHistoryLimit = 100

// Config holds the Discord channel configuration.
type Config struct {
	// Token is the bot token. Falls back to the DISCORD_TOKEN environment
	// variable when empty.
	Token string `yaml:"token"`

	// AllowUsers and AllowGroups feed the allow-list. Users are Discord
	// user IDs; groups are channel IDs (a thread counts as its own channel).
	AllowUsers  []string `yaml:"allow_users"`
	AllowGroups []string `yaml:"allow_groups"`

	// MaxMessageLength caps outbound chunks. Defaults to the Discord
	// maximum of 2000.
	MaxMessageLength int `yaml:"max_message_length"`
}

// defaults applies default values to unset fields.
func (c *Config) defaults() {
	if c.MaxMessageLength == 0 {
		c.MaxMessageLength = maxDiscordMessageLength
	}
}

// validate checks configuration field constraints beyond basic presence
// checks. It is called from Discord.Validate after defaults have been applied.
func (c *Config) validate() error {
	if c.MaxMessageLength < 1 || c.MaxMessageLength > maxDiscordMessageLength {
		return fmt.Errorf("discord: max_message_length must be 1-%d, got %d",
			maxDiscordMessageLength, c.MaxMessageLength)
	}
	return nil
}
