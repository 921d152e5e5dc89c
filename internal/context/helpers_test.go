package ctxengine_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/parleyhq/parley/internal/provider"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockSummarizer hands back a canned summary and records what it was asked
// to condense.
type mockSummarizer struct {
	result   string
	err      error
	called   int
	received []provider.LLMMessage
}

func (m *mockSummarizer) Summarize(_ context.Context, turns []provider.LLMMessage) (string, error) {
	m.called++
	m.received = turns
	return m.result, m.err
}

// makeTestMessages builds n turns, user and assistant alternating.
func makeTestMessages(n int) []provider.LLMMessage {
	msgs := make([]provider.LLMMessage, n)
	for i := range msgs {
		msgs[i] = provider.LLMMessage{Role: provider.MessageRoleUser, Content: fmt.Sprintf("msg-%d", i)}
		if i%2 == 1 {
			msgs[i].Role = provider.MessageRoleAssistant
		}
	}
	return msgs
}

// wantTurns compares got against want element by element.
func wantTurns(t *testing.T, got, want []provider.LLMMessage) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d turns, want %d", len(got), len(want))
	}
	for i := range got {
		if !reflect.DeepEqual(got[i], want[i]) {
			t.Errorf("turn %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
