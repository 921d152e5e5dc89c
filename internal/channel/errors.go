package channel

import "errors"

// Failures shared by the dispatcher and the channel adapters. Callers
// match them with errors.Is.
var (
	// ErrNoChannel means the outbound message names a channel nothing
	// is registered under.
	ErrNoChannel = errors.New("channel: unknown channel")

	// ErrDuplicateChannel means Register ran twice for one name.
	ErrDuplicateChannel = errors.New("channel: duplicate channel name")

	// ErrNoInbox means a message arrived before SetInbox wired the
	// adapter to the router.
	ErrNoInbox = errors.New("channel: inbox not set")

	// ErrDenied means the allow-list dropped the sender's message.
	ErrDenied = errors.New("channel: sender not allowed")

	// ErrMessageNotFound means a fetch-by-id asked for a message the
	// platform no longer knows (deleted, expired, or never existed).
	ErrMessageNotFound = errors.New("channel: message not found")

	// ErrNoHistory means the platform exposes no native message
	// history to read back.
	ErrNoHistory = errors.New("channel: history not supported")
)
