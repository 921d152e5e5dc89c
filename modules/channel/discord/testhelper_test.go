package discord

import (
	"io"
	"log/slog"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/parleyhq/parley/internal/channel"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRest implements restSession with canned responses and call recording.
type fakeRest struct {
	sent        []*discordgo.MessageSend
	sentTargets []string
	sendErr     error

	typingTargets []string
	typingErr     error

	history      []*discordgo.Message
	historyErr   error
	historyLimit int

	messages   map[string]*discordgo.Message
	messageErr error

	channels map[string]*discordgo.Channel
	members  map[string]*discordgo.Member
	guilds   map[string]*discordgo.Guild
}

var _ restSession = (*fakeRest)(nil)

func (f *fakeRest) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, data)
	f.sentTargets = append(f.sentTargets, channelID)
	return &discordgo.Message{ID: "sent", ChannelID: channelID, Content: data.Content}, nil
}

func (f *fakeRest) ChannelMessages(_ string, limit int, _, _, _ string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	f.historyLimit = limit
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeRest) ChannelMessage(_, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.messageErr != nil {
		return nil, f.messageErr
	}
	if m, ok := f.messages[messageID]; ok {
		return m, nil
	}
	return nil, &discordgo.RESTError{
		Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownMessage},
	}
}

func (f *fakeRest) ChannelTyping(channelID string, _ ...discordgo.RequestOption) error {
	if f.typingErr != nil {
		return f.typingErr
	}
	f.typingTargets = append(f.typingTargets, channelID)
	return nil
}

func (f *fakeRest) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if ch, ok := f.channels[channelID]; ok {
		return ch, nil
	}
	return nil, &discordgo.RESTError{
		Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownChannel},
	}
}

func (f *fakeRest) GuildMember(guildID, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	if m, ok := f.members[guildID+"/"+userID]; ok {
		return m, nil
	}
	return nil, &discordgo.RESTError{
		Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownMember},
	}
}

func (f *fakeRest) Guild(guildID string, _ ...discordgo.RequestOption) (*discordgo.Guild, error) {
	if g, ok := f.guilds[guildID]; ok {
		return g, nil
	}
	return nil, &discordgo.RESTError{
		Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownGuild},
	}
}

// newTestDiscord builds a module wired to a fakeRest, bypassing Provision so
// no gateway session exists.
func newTestDiscord(t *testing.T, rest *fakeRest) *Discord {
	t.Helper()

	d := &Discord{
		config: Config{
			AllowUsers: []string{"user-1"},
		},
		logger: discardLogger(),
		rest:   rest,
	}
	d.config.defaults()
	d.allowList = channel.NewAllowList(d.config.AllowUsers, d.config.AllowGroups)
	d.setSelf(channel.Identity{ID: "bot-1", Username: "parley"})
	return d
}
