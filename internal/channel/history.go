package channel

import (
	"context"

	"github.com/parleyhq/parley/pkg/message"
)

// Identity describes a channel's own account on its platform. The ID is
// compared against history entry authors to classify turns.
type Identity struct {
	ID       string
	Username string
}

// HistoryProvider is implemented by channels whose platform exposes native
// message history. The returned entries are owned by the channel adapter and
// read-only to callers.
type HistoryProvider interface {
	Channel

	// FetchHistory returns up to limit entries for the chat, most recent
	// first. Fewer entries than limit is not an error.
	FetchHistory(ctx context.Context, chatID string, limit int) ([]message.HistoryEntry, error)

	// FetchByID resolves one message by its platform ID. Returns
	// ErrMessageNotFound when the platform does not know the message.
	FetchByID(ctx context.Context, chatID, messageID string) (*message.HistoryEntry, error)
}

// RoleProvider is implemented by channels that can resolve the role names a
// user holds within a chat.
type RoleProvider interface {
	Channel

	UserRoles(ctx context.Context, chatID, userID string) ([]string, error)
}

// IdentityProvider is implemented by channels that know their own account
// identity.
type IdentityProvider interface {
	Channel

	BotIdentity() Identity
}
