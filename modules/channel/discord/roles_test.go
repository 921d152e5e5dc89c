package discord

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestUserRoles(t *testing.T) {
	rest := &fakeRest{
		channels: map[string]*discordgo.Channel{
			"chan-1": {ID: "chan-1", GuildID: "guild-1"},
		},
		members: map[string]*discordgo.Member{
			"guild-1/user-1": {Roles: []string{"r-admin", "r-gone", "r-mod"}},
		},
		guilds: map[string]*discordgo.Guild{
			"guild-1": {
				ID: "guild-1",
				Roles: []*discordgo.Role{
					{ID: "r-admin", Name: "admin"},
					{ID: "r-mod", Name: "moderator"},
				},
			},
		},
	}
	d := newTestDiscord(t, rest)

	roles, err := d.UserRoles(context.Background(), "chan-1", "user-1")
	if err != nil {
		t.Fatalf("UserRoles: %v", err)
	}

	// Role IDs without a guild entry are dropped.
	if len(roles) != 2 || roles[0] != "admin" || roles[1] != "moderator" {
		t.Errorf("roles = %v, want [admin moderator]", roles)
	}
}

func TestUserRoles_DirectMessage(t *testing.T) {
	rest := &fakeRest{
		channels: map[string]*discordgo.Channel{
			"dm-1": {ID: "dm-1", Type: discordgo.ChannelTypeDM},
		},
	}
	d := newTestDiscord(t, rest)

	roles, err := d.UserRoles(context.Background(), "dm-1", "user-1")
	if err != nil {
		t.Fatalf("UserRoles: %v", err)
	}
	if roles != nil {
		t.Errorf("roles = %v, want nil for DMs", roles)
	}
}

func TestUserRoles_UnknownChannel(t *testing.T) {
	d := newTestDiscord(t, &fakeRest{})

	if _, err := d.UserRoles(context.Background(), "nope", "user-1"); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}

func TestUserRoles_UnknownMember(t *testing.T) {
	rest := &fakeRest{
		channels: map[string]*discordgo.Channel{
			"chan-1": {ID: "chan-1", GuildID: "guild-1"},
		},
	}
	d := newTestDiscord(t, rest)

	if _, err := d.UserRoles(context.Background(), "chan-1", "stranger"); err == nil {
		t.Fatal("expected error for unknown member")
	}
}
