package router

import (
	"cmp"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/hook"
	"github.com/parleyhq/parley/internal/ledger"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/tool"
	"github.com/parleyhq/parley/pkg/message"
)

const defaultInboxSize = 256

// DefaultMaxIdle is how long an idle session survives when no explicit
// limit is configured. The session cleanup job uses the same value so the
// lazy pruner and the scheduled sweep agree.
const DefaultMaxIdle = 30 * time.Minute

// Config wires a Router's collaborators and tuning knobs.
type Config struct {
	// Sizing and admission.
	WorkerCount int
	InboxSize   int
	MaxIdle     time.Duration
	GroupPolicy GroupPolicy

	// Core collaborators, all required.
	Generator      Generator
	Builder        ContextBuilder
	ResponseSender ResponseSender

	// Logger, when nil, falls back to slog.Default.
	Logger *slog.Logger

	// Ledger records tool calls per conversation. Nil disables ledger
	// maintenance on control commands.
	Ledger *ledger.Ledger

	// Registry supplies the tools offered to the model. Nil means none.
	Registry *tool.Registry

	// Grants maps role names to tool scopes for capability filtering.
	Grants tool.Grants

	// ChannelLookup resolves channels for transcript fetches, role
	// lookups, and typing indicators.
	ChannelLookup ChannelLookup

	// Prompt supplies system prompt parts per message.
	Prompt PromptSource

	// HookPipeline, if non-nil, is consulted at before_process,
	// before_send, and after_send.
	HookPipeline *hook.Pipeline

	// RateLimiter, if non-nil, enforces per-sender message limits and
	// the session ceiling.
	RateLimiter *security.RateLimiter

	// AuditLogger, if non-nil, receives session lifecycle events.
	AuditLogger *security.AuditLogger

	// Observer, if non-nil, receives message, admission, and generation
	// events for metrics.
	Observer Observer

	// MaxMessageSize caps the raw payload accepted at Submit, in bytes.
	// Zero delegates to the security package default (1 MiB).
	MaxMessageSize int

	// HistoryLimit caps the per-message transcript fetch. Zero means the
	// default (50).
	HistoryLimit int

	// AwaitTimeout bounds how long an admitted message may wait on the
	// model. Zero means the default (10 minutes).
	AwaitTimeout time.Duration
}

// normalize fills zero config fields with their defaults.
func (c Config) normalize() Config {
	c.Logger = cmp.Or(c.Logger, slog.Default())
	if c.MaxIdle <= 0 {
		c.MaxIdle = DefaultMaxIdle
	}
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = DefaultWorkerCount
	}
	return c
}

// Router is the central dispatch layer. It maintains sessions, arbitrates
// per-conversation admission through the queue, and routes each accepted
// message through the pipeline to the generator.
type Router struct {
	config Config
	logger *slog.Logger

	inbox   chan envelope
	inboxMu sync.RWMutex

	store    SessionStore
	queue    *Queue
	pool     *WorkerPool
	pipeline *Pipeline
	pruner   *lazyPruner

	// cancel and stopped are guarded by inboxMu, which also orders
	// inbox sends against its close.
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopped  bool
}

// NewRouter creates a new Router with the given configuration.
func NewRouter(cfg Config) (*Router, error) {
	switch {
	case cfg.Generator == nil:
		return nil, ErrNoGenerator
	case cfg.Builder == nil:
		return nil, ErrNoContextBuilder
	case cfg.ResponseSender == nil:
		return nil, ErrNoResponseSender
	}
	cfg = cfg.normalize()

	store := NewInMemorySessionStore()
	queue := NewQueue()
	pruner := newLazyPruner(store, cfg.MaxIdle)

	pipeline := NewPipeline(PipelineConfig{
		Store:          store,
		Queue:          queue,
		GroupPolicy:    cfg.GroupPolicy,
		Generator:      cfg.Generator,
		Builder:        cfg.Builder,
		ResponseSender: cfg.ResponseSender,
		Pruner:         pruner,
		HookPipeline:   cfg.HookPipeline,
		Logger:         cfg.Logger,
		Ledger:         cfg.Ledger,
		Registry:       cfg.Registry,
		Grants:         cfg.Grants,
		ChannelLookup:  cfg.ChannelLookup,
		Prompt:         cfg.Prompt,
		AuditLogger:    cfg.AuditLogger,
		Observer:       cfg.Observer,
		HistoryLimit:   cfg.HistoryLimit,
		AwaitTimeout:   cfg.AwaitTimeout,
	})

	return &Router{
		config:   cfg,
		logger:   cfg.Logger,
		inbox:    make(chan envelope, cfg.InboxSize),
		store:    store,
		queue:    queue,
		pool:     NewWorkerPool(cfg.WorkerCount),
		pipeline: pipeline,
		pruner:   pruner,
	}, nil
}

// Start launches the worker pool and begins draining the inbox. Calling
// Start on a stopped router is a logged no-op.
func (r *Router) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	if !r.markStarted(cancel) {
		cancel()
		r.logger.Warn("router: start ignored, router already stopped")
		return
	}

	r.pool.Start(ctx, r.inbox, func(ctx context.Context, env envelope) {
		r.pipeline.Execute(ctx, env)
	})
	r.logger.Info("router: started", "workers", r.config.WorkerCount, "inbox_size", r.config.InboxSize)
}

// markStarted stores cancel under the lock. It reports false when the
// router has already been stopped.
func (r *Router) markStarted(cancel context.CancelFunc) bool {
	r.inboxMu.Lock()
	defer r.inboxMu.Unlock()
	if r.stopped {
		return false
	}
	r.cancel = cancel
	return true
}

// Submit enqueues an inbound message for processing. Control commands ride
// the same inbox as ordinary messages and are handled before admission, so
// they work even while the conversation has a generation in flight.
func (r *Router) Submit(msg message.InboundMessage) error {
	r.inboxMu.RLock()
	defer r.inboxMu.RUnlock()
	if r.stopped {
		return ErrRouterStopped
	}
	if err := r.screen(msg); err != nil {
		return err
	}

	key := SessionKeyFromMessage(msg)

	// Non-blocking send so a full inbox sheds load instead of stalling
	// the channel adapter.
	select {
	case r.inbox <- envelope{Message: msg, Key: key}:
		return nil
	default:
		r.logger.Warn("router: inbox full, message dropped", "channel", key.Channel, "chat_id", key.ChatID)
		return ErrInboxFull
	}
}

// screen applies the boundary checks every inbound message must pass:
// raw payload size and nesting limits, then the per-sender rate limit.
func (r *Router) screen(msg message.InboundMessage) error {
	if len(msg.Raw) > 0 {
		if err := security.ValidateMessageSize(msg.Raw, r.config.MaxMessageSize); err != nil {
			r.logger.Warn("router: oversized message rejected", "size", len(msg.Raw), "channel", msg.Channel)
			return err
		}
		if err := security.ValidateJSONDepth(msg.Raw, 0); err != nil {
			r.logger.Warn("router: deeply nested message rejected", "channel", msg.Channel)
			return err
		}
	}

	// Per-sender limit; one flooding user must not mute the rest.
	if r.config.RateLimiter == nil {
		return nil
	}
	if err := r.config.RateLimiter.Allow(security.LimitMessage, msg.Sender.ID); err != nil {
		r.logger.Warn("router: message rate limited",
			"channel", msg.Channel,
			"chat_id", msg.Chat.ID,
			"sender", msg.Sender.ID,
		)
		return err
	}
	return nil
}

// Stop shuts the router down: no new submissions, inbox closed, in-flight
// generations cancelled, workers joined. Safe to call more than once.
func (r *Router) Stop(_ context.Context) {
	r.stopOnce.Do(func() {
		r.logger.Info("router: stopping")
		r.inboxMu.Lock()
		r.stopped = true
		cancel := r.cancel
		close(r.inbox)
		r.inboxMu.Unlock()

		if cancel != nil {
			cancel() // unblocks handlers waiting on the model
		}
		r.pool.Wait()

		r.logger.Info("router: stopped")
	})
}

// PruneSessions evicts sessions idle past the configured limit and
// reports how many were removed.
func (r *Router) PruneSessions() int {
	return r.pruner.TryPrune()
}

// Sessions exposes the session store for admin surfaces.
func (r *Router) Sessions() SessionStore {
	return r.store
}

// QueueDepth reports how many conversations have a generation in flight.
func (r *Router) QueueDepth() int {
	return r.queue.Len()
}
