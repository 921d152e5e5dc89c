package channel

import (
	"strings"

	"github.com/parleyhq/parley/pkg/message"
)

// idSet is a normalized membership set for platform identifiers.
type idSet map[string]struct{}

func newIDSet(ids []string) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[normalizeID(id)] = struct{}{}
	}
	return s
}

func (s idSet) has(id string) bool {
	_, ok := s[normalizeID(id)]
	return ok
}

// normalizeID canonicalizes an identifier for matching: platform IDs are
// compared case-insensitively and without surrounding whitespace.
func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// AllowList controls which users and groups may interact with a channel.
// A nil or empty AllowList denies everyone.
type AllowList struct {
	users  idSet
	groups idSet
}

// NewAllowList builds an AllowList from user and group identifiers. Entries
// are normalized at construction so IsAllowed is a map lookup.
func NewAllowList(users, groups []string) *AllowList {
	return &AllowList{
		users:  newIDSet(users),
		groups: newIDSet(groups),
	}
}

// IsAllowed reports whether msg may enter the pipeline: the sender must be
// a listed user or the chat a listed group. With nothing listed, everything
// is denied.
func (a *AllowList) IsAllowed(msg message.InboundMessage) bool {
	if a == nil {
		return false
	}
	return a.users.has(msg.Sender.ID) || a.groups.has(msg.Chat.ID)
}
