package channel

import (
	"context"
	"testing"
	"time"

	"github.com/parleyhq/parley/pkg/message"
)

// A non-positive interval must never reach time.NewTicker, which panics
// on zero.
func TestStartTypingLoopZeroInterval(t *testing.T) {
	t.Parallel()

	ch := NewMockStreamingChannel("probe", NewAllowList([]string{"alice"}, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartTypingLoop(ctx, ch, message.Chat{ID: "dm-1", Type: message.ChatDM}, 0)
	awaitTyping(t, ch)
}

// The first indicator goes out straight away, not after one full interval.
func TestStartTypingLoopSendsImmediately(t *testing.T) {
	t.Parallel()

	ch := NewMockStreamingChannel("probe", NewAllowList([]string{"alice"}, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartTypingLoop(ctx, ch, message.Chat{ID: "dm-2", Type: message.ChatDM}, time.Hour)
	awaitTyping(t, ch)
}

// awaitTyping polls until ch records its first typing indicator.
func awaitTyping(t *testing.T, ch *MockStreamingChannel) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(ch.TypingChats()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no typing indicator recorded")
		}
		time.Sleep(time.Millisecond)
	}
}
