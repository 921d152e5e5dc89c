// Package routertest provides doubles for the router's collaborator
// interfaces. The router's own tests define local doubles instead,
// since importing this package from package router would close an
// import cycle; routertest exists for tests elsewhere that stand up a
// real router. Zero values produce sensible canned outcomes, the Func
// fields take over when a test needs full control.
package routertest

import (
	"context"
	"slices"
	"sync"

	"github.com/parleyhq/parley/internal/agent"
	ctxengine "github.com/parleyhq/parley/internal/context"
	"github.com/parleyhq/parley/internal/provider"
	"github.com/parleyhq/parley/internal/router"
	"github.com/parleyhq/parley/pkg/message"
)

// MockGenerator satisfies router.Generator with a canned reply. Every
// request is recorded before the outcome is decided, so Requests sees
// calls that failed too.
type MockGenerator struct {
	// Reply is the text of the canned result. Empty means "ok", so a
	// zero-value generator still yields an observable outbound message.
	Reply string

	// Err, when non-nil, fails every generation.
	Err error

	// GenerateFunc, when non-nil, replaces the canned outcome.
	GenerateFunc func(ctx context.Context, req agent.GenerateRequest) (agent.GenerateResult, error)

	mu   sync.Mutex
	reqs []agent.GenerateRequest
}

func (g *MockGenerator) Generate(ctx context.Context, req agent.GenerateRequest) (agent.GenerateResult, error) {
	g.mu.Lock()
	g.reqs = append(g.reqs, req)
	g.mu.Unlock()

	switch {
	case g.GenerateFunc != nil:
		return g.GenerateFunc(ctx, req)
	case g.Err != nil:
		return agent.GenerateResult{StopReason: agent.StopReasonError}, g.Err
	}
	reply := g.Reply
	if reply == "" {
		reply = "ok"
	}
	return agent.GenerateResult{
		Content:    reply,
		Iterations: 1,
		StopReason: agent.StopReasonComplete,
	}, nil
}

// Requests returns a copy of every generation request seen so far.
func (g *MockGenerator) Requests() []agent.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.reqs)
}

// MockContextBuilder satisfies router.ContextBuilder. The default
// behavior mirrors the real builder's shape: system parts first, then
// one user turn per history entry.
type MockContextBuilder struct {
	// Err, when non-nil, fails every build.
	Err error

	// BuildFunc, when non-nil, replaces the default assembly.
	BuildFunc func(ctx context.Context, req ctxengine.BuildRequest) (ctxengine.BuildResult, error)

	mu   sync.Mutex
	reqs []ctxengine.BuildRequest
}

func (b *MockContextBuilder) Build(ctx context.Context, req ctxengine.BuildRequest) (ctxengine.BuildResult, error) {
	b.mu.Lock()
	b.reqs = append(b.reqs, req)
	b.mu.Unlock()

	switch {
	case b.BuildFunc != nil:
		return b.BuildFunc(ctx, req)
	case b.Err != nil:
		return ctxengine.BuildResult{}, b.Err
	}
	var res ctxengine.BuildResult
	for _, part := range req.SystemParts {
		res.Messages = append(res.Messages, provider.LLMMessage{Role: provider.MessageRoleSystem, Content: part})
	}
	for _, entry := range req.History {
		res.Messages = append(res.Messages, provider.LLMMessage{Role: provider.MessageRoleUser, Content: entry.Content})
	}
	return res, nil
}

// Requests returns a copy of every build request seen so far.
func (b *MockContextBuilder) Requests() []ctxengine.BuildRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.reqs)
}

// MockResponseSender captures outbound messages. Messages are recorded
// even when the configured outcome is a failure.
type MockResponseSender struct {
	// Err is returned from every Send when SendFunc is nil.
	Err error

	// SendFunc, when non-nil, decides the outcome per message.
	SendFunc func(ctx context.Context, msg message.OutboundMessage) error

	mu     sync.Mutex
	outbox []message.OutboundMessage
}

func (s *MockResponseSender) Send(ctx context.Context, msg message.OutboundMessage) error {
	s.mu.Lock()
	s.outbox = append(s.outbox, msg)
	s.mu.Unlock()

	if s.SendFunc != nil {
		return s.SendFunc(ctx, msg)
	}
	return s.Err
}

// SentMessages returns a copy of every message delivered so far.
func (s *MockResponseSender) SentMessages() []message.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.outbox)
}

// Interface guards.
var (
	_ router.Generator      = (*MockGenerator)(nil)
	_ router.ContextBuilder = (*MockContextBuilder)(nil)
	_ router.ResponseSender = (*MockResponseSender)(nil)
)
