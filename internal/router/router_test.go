package router_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/parleyhq/parley/internal/agent"
	"github.com/parleyhq/parley/internal/router"
	"github.com/parleyhq/parley/internal/router/routertest"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/pkg/message"
)

// inbound builds a DM from user-1 on the discord channel. Router tests
// only care that the session key fields are stable.
func inbound(id string) message.InboundMessage {
	return message.InboundMessage{
		ID:      id,
		Channel: "discord",
		Sender:  message.Sender{ID: "user-1"},
		Chat:    message.Chat{ID: "C123", Type: message.ChatDM},
		Blocks:  []message.ContentBlock{message.NewTextBlock("hello")},
	}
}

func baseConfig() router.Config {
	return router.Config{
		Generator:      &routertest.MockGenerator{},
		Builder:        &routertest.MockContextBuilder{},
		ResponseSender: &routertest.MockResponseSender{},
		GroupPolicy:    router.GroupPolicy{Mode: router.GroupPolicyAllowAll},
	}
}

// routerWith builds an unstarted router over fresh collaborators, applying
// each mutation to the base config first.
func routerWith(t *testing.T, muts ...func(*router.Config)) *router.Router {
	t.Helper()
	cfg := baseConfig()
	for _, mut := range muts {
		mut(&cfg)
	}
	r, err := router.NewRouter(cfg)
	if err != nil {
		t.Fatalf("NewRouter() error: %v", err)
	}
	return r
}

// startRouter additionally starts the router and registers a stopping
// cleanup. Tests may still stop it themselves; Stop is idempotent.
func startRouter(t *testing.T, muts ...func(*router.Config)) *router.Router {
	t.Helper()
	r := routerWith(t, muts...)
	r.Start(context.Background())
	t.Cleanup(func() { r.Stop(context.Background()) })
	return r
}

// awaitSent polls sender until want messages have gone out.
func awaitSent(t *testing.T, sender *routertest.MockResponseSender, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(sender.SentMessages()) >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sent messages, have %d", want, len(sender.SentMessages()))
}

// awaitStop fails the test if Stop does not return within five seconds,
// which would mean a worker is stuck.
func awaitStop(t *testing.T, r *router.Router) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		r.Stop(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestNewRouterMissingCollaborators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mut  func(*router.Config)
		want error
	}{
		{"nil generator", func(c *router.Config) { c.Generator = nil }, router.ErrNoGenerator},
		{"nil context builder", func(c *router.Config) { c.Builder = nil }, router.ErrNoContextBuilder},
		{"nil response sender", func(c *router.Config) { c.ResponseSender = nil }, router.ErrNoResponseSender},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := baseConfig()
			tt.mut(&cfg)
			if _, err := router.NewRouter(cfg); !errors.Is(err, tt.want) {
				t.Errorf("NewRouter error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewRouterFreshState(t *testing.T) {
	t.Parallel()

	r := routerWith(t)

	if got := r.QueueDepth(); got != 0 {
		t.Errorf("QueueDepth = %d, want 0 on a fresh router", got)
	}
	if pruned := r.PruneSessions(); pruned != 0 {
		t.Errorf("PruneSessions() = %d, want 0 on an empty store", pruned)
	}
	if got := r.Sessions().Len(); got != 0 {
		t.Errorf("Sessions().Len() = %d, want 0 before any submission", got)
	}
}

func TestRouterSubmitShedsWhenInboxFull(t *testing.T) {
	t.Parallel()

	// Unstarted router: nothing drains the inbox, so the second submit
	// finds it full and must fail fast rather than block.
	r := routerWith(t, func(c *router.Config) { c.InboxSize = 1 })

	if err := r.Submit(inbound("msg-1")); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if err := r.Submit(inbound("msg-2")); !errors.Is(err, router.ErrInboxFull) {
		t.Errorf("second Submit error = %v, want %v", err, router.ErrInboxFull)
	}
}

func TestRouterStopIsFinal(t *testing.T) {
	t.Parallel()

	r := routerWith(t)
	r.Start(context.Background())
	r.Stop(context.Background())
	r.Stop(context.Background()) // second Stop is a no-op

	if err := r.Submit(inbound("late")); !errors.Is(err, router.ErrRouterStopped) {
		t.Errorf("Submit after Stop error = %v, want %v", err, router.ErrRouterStopped)
	}

	// Start after Stop must not revive the inbox either.
	r.Start(context.Background())
	if err := r.Submit(inbound("later")); !errors.Is(err, router.ErrRouterStopped) {
		t.Errorf("Submit after restart error = %v, want %v", err, router.ErrRouterStopped)
	}
}

func TestRouterSubmitScreensOversizedPayload(t *testing.T) {
	t.Parallel()

	r := routerWith(t, func(c *router.Config) { c.MaxMessageSize = 64 })

	msg := inbound("big")
	msg.Raw = bytes.Repeat([]byte("x"), 65)
	if err := r.Submit(msg); !errors.Is(err, security.ErrMessageTooLarge) {
		t.Errorf("Submit error = %v, want %v", err, security.ErrMessageTooLarge)
	}
}

func TestRouterSubmitRateLimitsPerSender(t *testing.T) {
	t.Parallel()

	r := routerWith(t, func(c *router.Config) {
		c.InboxSize = 8
		c.RateLimiter = security.NewRateLimiter(security.RateLimitConfig{MessagesPerMin: 2})
	})

	for i := range 2 {
		if err := r.Submit(inbound(fmt.Sprintf("msg-%d", i))); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if err := r.Submit(inbound("msg-3")); !errors.Is(err, security.ErrRateLimited) {
		t.Errorf("third Submit error = %v, want %v", err, security.ErrRateLimited)
	}

	// The limit is per sender; another user is still admitted.
	other := inbound("msg-4")
	other.Sender = message.Sender{ID: "user-2"}
	if err := r.Submit(other); err != nil {
		t.Errorf("other sender Submit error = %v, want nil", err)
	}
}

func TestRouterStopCompletesWithBacklog(t *testing.T) {
	t.Parallel()

	r := routerWith(t, func(c *router.Config) { c.WorkerCount = 2 })
	r.Start(context.Background())

	for i := range 3 {
		if err := r.Submit(inbound(fmt.Sprintf("msg-%d", i))); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	awaitStop(t, r)
}

func TestRouterEndToEnd(t *testing.T) {
	t.Parallel()

	sender := &routertest.MockResponseSender{}
	r := startRouter(t, func(c *router.Config) {
		c.WorkerCount = 2
		c.InboxSize = 10
		c.Generator = &routertest.MockGenerator{Reply: "Hello!"}
		c.ResponseSender = sender
	})

	if err := r.Submit(inbound("e2e")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	awaitSent(t, sender, 1)

	r.Stop(context.Background())

	sent := sender.SentMessages()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if got := sent[0].TextContent(); got != "Hello!" {
		t.Errorf("reply text = %q, want %q", got, "Hello!")
	}
	if sent[0].Channel != "discord" || sent[0].ReplyToID != "e2e" {
		t.Errorf("reply addressing = %q/%q, want discord/e2e", sent[0].Channel, sent[0].ReplyToID)
	}
	if got := r.QueueDepth(); got != 0 {
		t.Errorf("QueueDepth = %d, want 0 after settlement", got)
	}
}

func TestRouterSubmitRacesStop(t *testing.T) {
	t.Parallel()

	r := startRouter(t, func(c *router.Config) {
		c.WorkerCount = 2
		c.InboxSize = 32
	})

	var wg sync.WaitGroup
	for worker := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				_ = r.Submit(inbound(fmt.Sprintf("msg-%d-%d", worker, j)))
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	awaitStop(t, r)
	wg.Wait()
}

func TestRouterStopCancelsInFlightGeneration(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	var once sync.Once
	gen := &routertest.MockGenerator{
		GenerateFunc: func(ctx context.Context, _ agent.GenerateRequest) (agent.GenerateResult, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return agent.GenerateResult{Cancelled: true}, nil
		},
	}
	sender := &routertest.MockResponseSender{}
	r := startRouter(t, func(c *router.Config) {
		c.WorkerCount = 1
		c.InboxSize = 1
		c.Generator = gen
		c.ResponseSender = sender
	})

	if err := r.Submit(inbound("blocking")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("generation never started")
	}

	awaitStop(t, r)

	// A cancelled generation settles silently.
	if got := len(sender.SentMessages()); got != 0 {
		t.Errorf("sent %d messages after cancellation, want 0", got)
	}
}
