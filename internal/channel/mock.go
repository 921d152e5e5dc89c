package channel

import (
	"context"
	"slices"
	"sync"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/pkg/message"
)

// MockChannel is an in-memory Channel for tests. It records everything
// sent through it and lets tests inject inbound traffic with
// SimulateMessage, subject to the same allow-list screening a real
// channel applies.
type MockChannel struct {
	// SendFunc, when set, replaces the default record-and-succeed Send.
	SendFunc func(ctx context.Context, msg message.OutboundMessage) error

	name  string
	allow *AllowList

	mu      sync.Mutex
	deliver func(msg message.InboundMessage) error
	outbox  []message.OutboundMessage
}

// NewMockChannel returns a mock channel with the given name. A nil
// allow-list denies every sender, same as on the real channels.
func NewMockChannel(name string, allowList *AllowList) *MockChannel {
	return &MockChannel{name: name, allow: allowList}
}

// ModuleInfo returns the module metadata for registration.
func (m *MockChannel) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID("channel." + m.name),
		New: func() core.Module { return NewMockChannel(m.name, m.allow) },
	}
}

// SetInbox stores the callback SimulateMessage hands inbound messages to.
func (m *MockChannel) SetInbox(fn func(msg message.InboundMessage) error) {
	m.mu.Lock()
	m.deliver = fn
	m.mu.Unlock()
}

// SimulateMessage screens msg against the allow-list, stamps it with the
// channel name, and feeds it to the inbox callback. It reports ErrDenied
// for senders the allow-list rejects and ErrNoInbox before SetInbox ran.
func (m *MockChannel) SimulateMessage(msg message.InboundMessage) error {
	m.mu.Lock()
	deliver := m.deliver
	m.mu.Unlock()

	if !m.allow.IsAllowed(msg) {
		return ErrDenied
	}
	if deliver == nil {
		return ErrNoInbox
	}
	msg.Channel = m.name
	return deliver(msg)
}

// Send records msg, or delegates to SendFunc when one is set.
func (m *MockChannel) Send(ctx context.Context, msg message.OutboundMessage) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	m.mu.Lock()
	m.outbox = append(m.outbox, msg)
	m.mu.Unlock()
	return nil
}

// SentMessages returns a copy of every message recorded by Send.
func (m *MockChannel) SentMessages() []message.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.outbox)
}

// Reset drops the recorded messages.
func (m *MockChannel) Reset() {
	m.mu.Lock()
	m.outbox = nil
	m.mu.Unlock()
}

// typingRecorder captures typing indicators for the mocks that implement
// TypingChannel.
type typingRecorder struct {
	typingMu sync.Mutex
	typed    []message.Chat
}

// SendTyping implements TypingChannel.
func (r *typingRecorder) SendTyping(_ context.Context, chat message.Chat) error {
	r.typingMu.Lock()
	r.typed = append(r.typed, chat)
	r.typingMu.Unlock()
	return nil
}

// TypingChats returns every chat a typing indicator was sent to.
func (r *typingRecorder) TypingChats() []message.Chat {
	r.typingMu.Lock()
	defer r.typingMu.Unlock()
	return slices.Clone(r.typed)
}

// MockStreamingChannel is a MockChannel that additionally accepts chunk
// streams and typing indicators.
type MockStreamingChannel struct {
	*MockChannel
	typingRecorder

	// SupportsStreamingFunc overrides the answer SupportsStreaming gives.
	SupportsStreamingFunc func() bool

	enabled bool

	streamMu sync.Mutex
	chunks   []string
}

// NewMockStreamingChannel returns a mock with streaming switched on.
func NewMockStreamingChannel(name string, allowList *AllowList) *MockStreamingChannel {
	mock := NewMockChannel(name, allowList)
	return &MockStreamingChannel{MockChannel: mock, enabled: true}
}

// SupportsStreaming reports whether the mock advertises streaming; the
// hook takes priority when set.
func (m *MockStreamingChannel) SupportsStreaming() bool {
	if m.SupportsStreamingFunc != nil {
		return m.SupportsStreamingFunc()
	}
	return m.enabled
}

// SendStream implements StreamingChannel by draining the stream into an
// internal chunk log.
func (m *MockStreamingChannel) SendStream(_ context.Context, _ message.Chat, stream <-chan string) error {
	for chunk := range stream {
		m.streamMu.Lock()
		m.chunks = append(m.chunks, chunk)
		m.streamMu.Unlock()
	}
	return nil
}

// StreamChunks returns the chunks received so far, in arrival order.
func (m *MockStreamingChannel) StreamChunks() []string {
	m.streamMu.Lock()
	defer m.streamMu.Unlock()
	return slices.Clone(m.chunks)
}

// MockHistoryChannel is a MockChannel for platforms that expose chat
// history, member roles, and a bot identity. Behavior comes from the Func
// fields; while unset, lookups return empty results and FetchByID reports
// ErrMessageNotFound.
type MockHistoryChannel struct {
	*MockChannel
	typingRecorder

	Identity Identity

	FetchHistoryFunc func(ctx context.Context, chatID string, limit int) ([]message.HistoryEntry, error)
	FetchByIDFunc    func(ctx context.Context, chatID, messageID string) (*message.HistoryEntry, error)
	UserRolesFunc    func(ctx context.Context, chatID, userID string) ([]string, error)
}

// NewMockHistoryChannel returns a mock presenting identity as the bot's own.
func NewMockHistoryChannel(name string, allowList *AllowList, identity Identity) *MockHistoryChannel {
	return &MockHistoryChannel{
		MockChannel: NewMockChannel(name, allowList),
		Identity:    identity,
	}
}

// FetchHistory implements HistoryProvider.
func (m *MockHistoryChannel) FetchHistory(ctx context.Context, chatID string, limit int) ([]message.HistoryEntry, error) {
	if m.FetchHistoryFunc != nil {
		return m.FetchHistoryFunc(ctx, chatID, limit)
	}
	return nil, nil
}

// FetchByID implements HistoryProvider.
func (m *MockHistoryChannel) FetchByID(ctx context.Context, chatID, messageID string) (*message.HistoryEntry, error) {
	if m.FetchByIDFunc != nil {
		return m.FetchByIDFunc(ctx, chatID, messageID)
	}
	return nil, ErrMessageNotFound
}

// UserRoles implements RoleProvider.
func (m *MockHistoryChannel) UserRoles(ctx context.Context, chatID, userID string) ([]string, error) {
	if m.UserRolesFunc != nil {
		return m.UserRolesFunc(ctx, chatID, userID)
	}
	return nil, nil
}

// BotIdentity implements IdentityProvider.
func (m *MockHistoryChannel) BotIdentity() Identity { return m.Identity }

// Interface guards.
var (
	_ Channel          = (*MockChannel)(nil)
	_ StreamingChannel = (*MockStreamingChannel)(nil)
	_ TypingChannel    = (*MockStreamingChannel)(nil)
	_ HistoryProvider  = (*MockHistoryChannel)(nil)
	_ RoleProvider     = (*MockHistoryChannel)(nil)
	_ IdentityProvider = (*MockHistoryChannel)(nil)
	_ TypingChannel    = (*MockHistoryChannel)(nil)
)
