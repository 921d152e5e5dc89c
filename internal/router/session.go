package router

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/parleyhq/parley/pkg/message"
)

// SessionKey names a conversation by its channel, chat, and thread.
// It is the composite map key behind O(1) session lookups.
type SessionKey struct {
	Channel, ChatID, ThreadID string
}

// SessionKeyFromMessage derives the conversation key for an inbound message.
// Messages sharing a channel, chat, and thread land in the same session.
func SessionKeyFromMessage(msg message.InboundMessage) SessionKey {
	return SessionKey{Channel: msg.Channel, ChatID: msg.Chat.ID, ThreadID: msg.ThreadID}
}

// ConversationID renders the key as a stable string identifier for
// collaborators keyed by plain strings, such as the tool ledger.
func (k SessionKey) ConversationID() string {
	return k.Channel + "/" + k.ChatID + "/" + k.ThreadID
}

// Session tracks an active conversation. Transcript content lives on the
// platform and is refetched per message, so the session carries only
// identity and activity metadata.
type Session struct {
	ID           string
	Key          SessionKey
	CreatedAt    time.Time
	LastActiveAt time.Time
	Metadata     map[string]any
}

// newSessionID returns 16 random bytes hex encoded. When the OS entropy
// source fails the error text becomes the ID, which keeps sessions usable
// and makes the failure visible in logs.
func newSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("err-%v", err)
	}
	return hex.EncodeToString(b)
}

// SessionStore manages session lifecycle. Implementations must be safe for
// concurrent use.
type SessionStore interface {
	// GetOrCreate returns the session for key, creating it when absent.
	// The bool reports creation. A store at capacity may return (nil, false).
	GetOrCreate(key SessionKey) (*Session, bool)

	// Get returns the session for key, or nil.
	Get(key SessionKey) *Session

	// Touch refreshes the session's LastActiveAt stamp.
	Touch(key SessionKey)

	// Delete drops the session for key, if present.
	Delete(key SessionKey)

	// Prune drops sessions idle longer than maxIdle, reporting how many
	// were removed.
	Prune(maxIdle time.Duration) int

	// Len reports the number of live sessions.
	Len() int

	// Range walks the sessions until fn returns false.
	Range(fn func(SessionKey, *Session) bool)
}
