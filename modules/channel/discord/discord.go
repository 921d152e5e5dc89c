package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/parleyhq/parley/internal/channel"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/pkg/message"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Discord{})
}

// Interface guards.
var (
	_ channel.Channel          = (*Discord)(nil)
	_ channel.TypingChannel    = (*Discord)(nil)
	_ channel.HistoryProvider  = (*Discord)(nil)
	_ channel.RoleProvider     = (*Discord)(nil)
	_ channel.IdentityProvider = (*Discord)(nil)
	_ core.Configurable        = (*Discord)(nil)
	_ core.Provisioner         = (*Discord)(nil)
	_ core.Validator           = (*Discord)(nil)
	_ core.Starter             = (*Discord)(nil)
	_ core.Stopper             = (*Discord)(nil)
)

// restSession is the subset of discordgo.Session REST methods the module
// calls, narrowed so tests can substitute a fake without a gateway
// connection. *discordgo.Session satisfies it.
type restSession interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
}

// Discord implements the Discord channel backed by a discordgo gateway
// session.
type Discord struct {
	config    Config
	token     string
	logger    *slog.Logger
	allowList *channel.AllowList
	inbox     func(message.InboundMessage) error

	session *discordgo.Session
	rest    restSession

	// self is written by gateway handlers and read by the inbound path.
	mu   sync.RWMutex
	self channel.Identity
}

// ModuleInfo implements core.Module.
func (d *Discord) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "channel.discord",
		New: func() core.Module { return new(Discord) },
	}
}

// Name returns the short channel name used for dispatcher registration and
// inbound message tagging.
func (d *Discord) Name() string {
	return d.ModuleInfo().ID.Name()
}

// Configure implements core.Configurable.
func (d *Discord) Configure(node *yaml.Node) error {
	if err := node.Decode(&d.config); err != nil {
		return fmt.Errorf("discord: decode config: %w", err)
	}
	d.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (d *Discord) Provision(ctx *core.AppContext) error {
	d.config.defaults()
	d.logger = ctx.Logger

	// Resolve token: config takes precedence over environment variable.
	d.token = d.config.Token
	if d.token == "" {
		if envToken, ok := os.LookupEnv("DISCORD_TOKEN"); ok {
			d.token = envToken
		}
	}

	// Hand the token to the credential store so logs redact it.
	if d.token != "" {
		if svc, ok := ctx.Service("security.credentials"); ok {
			if store, ok := svc.(*security.CredentialStore); ok {
				store.Set("discord_token", d.token)
			}
		}
	}

	d.allowList = channel.NewAllowList(d.config.AllowUsers, d.config.AllowGroups)

	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent

	d.session = session
	d.rest = session

	return nil
}

// Validate implements core.Validator.
func (d *Discord) Validate() error {
	if d.token == "" {
		return errors.New("discord: token is required (config or DISCORD_TOKEN)")
	}
	return d.config.validate()
}

// Start implements core.Starter. It registers gateway handlers and opens the
// websocket connection.
func (d *Discord) Start() error {
	if d.inbox == nil {
		return errors.New("discord: inbox not set, call SetInbox before Start")
	}

	d.session.AddHandler(d.handleReady)
	d.session.AddHandler(d.handleMessageCreate)
	d.session.AddHandler(d.handleDisconnect)

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway (check token): %w", err)
	}

	// Open does not return until READY, so the session state carries our
	// identity by now.
	if user := d.session.State.User; user != nil {
		d.setSelf(channel.Identity{ID: user.ID, Username: user.Username})
	}

	self := d.BotIdentity()
	d.logger.Info("discord bot connected",
		"id", self.ID,
		"username", self.Username,
	)
	return nil
}

// Stop implements core.Stopper.
func (d *Discord) Stop(_ context.Context) error {
	d.logger.Info("discord channel stopping")
	if d.session != nil {
		return d.session.Close()
	}
	return nil
}

// Send implements channel.Channel.
func (d *Discord) Send(ctx context.Context, msg message.OutboundMessage) error {
	return d.sendOutbound(ctx, msg)
}

// SetInbox implements channel.Channel.
func (d *Discord) SetInbox(fn func(msg message.InboundMessage) error) {
	d.inbox = fn
}

// SendTyping implements channel.TypingChannel.
func (d *Discord) SendTyping(ctx context.Context, chat message.Chat) error {
	if err := d.rest.ChannelTyping(chat.ID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: typing indicator: %w", err)
	}
	return nil
}

// BotIdentity implements channel.IdentityProvider. It returns the zero
// Identity before the gateway handshake completes.
func (d *Discord) BotIdentity() channel.Identity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.self
}

func (d *Discord) setSelf(id channel.Identity) {
	d.mu.Lock()
	d.self = id
	d.mu.Unlock()
}

// Gateway event handlers. discordgo invokes each on its own goroutine.

func (d *Discord) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		d.setSelf(channel.Identity{ID: r.User.ID, Username: r.User.Username})
	}
	d.logger.Info("discord gateway ready", "guilds", len(r.Guilds))
}

func (d *Discord) handleDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	d.logger.Warn("discord gateway disconnected, awaiting automatic resume")
}

func (d *Discord) handleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	self := d.BotIdentity()
	if self.ID != "" && m.Author.ID == self.ID {
		return
	}

	inbound := convertInbound(m.Message, d.Name(), self.ID)

	if !d.allowList.IsAllowed(inbound) {
		d.logger.Debug("discord message denied by allow-list",
			"sender", inbound.Sender.ID,
			"chat", inbound.Chat.ID,
		)
		return
	}

	if err := d.inbox(inbound); err != nil {
		d.logger.Warn("discord inbox rejected message",
			"id", inbound.ID,
			"error", err,
		)
	}
}
