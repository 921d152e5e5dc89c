package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// UserRoles implements channel.RoleProvider. It resolves the member's role
// IDs to role names so permission policies can match on human-readable
// names. DMs carry no roles and return nil.
func (d *Discord) UserRoles(ctx context.Context, chatID, userID string) ([]string, error) {
	guildID, err := d.guildIDFor(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if guildID == "" {
		return nil, nil
	}

	member, err := d.member(ctx, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("discord: member %s in guild %s: %w", userID, guildID, err)
	}

	guild, err := d.guild(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("discord: guild %s: %w", guildID, err)
	}

	names := make(map[string]string, len(guild.Roles))
	for _, role := range guild.Roles {
		if role != nil {
			names[role.ID] = role.Name
		}
	}

	roles := make([]string, 0, len(member.Roles))
	for _, id := range member.Roles {
		if name, ok := names[id]; ok {
			roles = append(roles, name)
		}
	}
	return roles, nil
}

// guildIDFor resolves the guild owning a channel, preferring the session
// state cache over a REST round trip. An empty guild ID means a DM.
func (d *Discord) guildIDFor(ctx context.Context, chatID string) (string, error) {
	if d.session != nil {
		if ch, err := d.session.State.Channel(chatID); err == nil {
			return ch.GuildID, nil
		}
	}
	ch, err := d.rest.Channel(chatID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: channel %s: %w", chatID, err)
	}
	return ch.GuildID, nil
}

// member resolves a guild member, state cache first. The member cache is
// only populated when the privileged members intent is granted, so the REST
// fallback is the common path.
func (d *Discord) member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if d.session != nil {
		if m, err := d.session.State.Member(guildID, userID); err == nil {
			return m, nil
		}
	}
	return d.rest.GuildMember(guildID, userID, discordgo.WithContext(ctx))
}

// guild resolves guild metadata, state cache first.
func (d *Discord) guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if d.session != nil {
		if g, err := d.session.State.Guild(guildID); err == nil && len(g.Roles) > 0 {
			return g, nil
		}
	}
	return d.rest.Guild(guildID, discordgo.WithContext(ctx))
}
