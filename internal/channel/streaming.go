package channel

import (
	"context"
	"time"

	"github.com/parleyhq/parley/pkg/message"
)

// StreamingChannel is implemented by channels that can surface partial
// responses while generation is still running.
type StreamingChannel interface {
	Channel

	// SupportsStreaming reports whether streaming is usable right now.
	// Channels may turn it off dynamically, e.g. under platform rate limits.
	SupportsStreaming() bool

	// SendStream drains stream into the platform, aggregating chunks and
	// flushing at whatever cadence suits the platform. The caller closes
	// the stream once the response is complete.
	SendStream(ctx context.Context, chat message.Chat, stream <-chan string) error
}

// TypingChannel is implemented by channels that can show a typing
// indicator while a reply is being generated.
type TypingChannel interface {
	Channel

	// SendTyping puts up one typing indicator.
	SendTyping(ctx context.Context, chat message.Chat) error
}

// DefaultTypingInterval is the refresh cadence for typing indicators when
// the caller does not specify one. Most platforms expire an indicator
// after about ten seconds.
const DefaultTypingInterval = 8 * time.Second

// StartTypingLoop fires a goroutine that refreshes the typing indicator
// every interval until ctx is cancelled. A non-positive interval falls
// back to DefaultTypingInterval.
func StartTypingLoop(ctx context.Context, ch TypingChannel, chat message.Chat, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	go typingLoop(ctx, ch, chat, interval)
}

func typingLoop(ctx context.Context, ch TypingChannel, chat message.Chat, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// The first indicator goes out immediately.
	_ = ch.SendTyping(ctx, chat)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = ch.SendTyping(ctx, chat)
		}
	}
}
