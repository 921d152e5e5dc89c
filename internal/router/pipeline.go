package router

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/agent"
	"github.com/parleyhq/parley/internal/channel"
	ctxengine "github.com/parleyhq/parley/internal/context"
	"github.com/parleyhq/parley/internal/hook"
	"github.com/parleyhq/parley/internal/ledger"
	"github.com/parleyhq/parley/internal/provider"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/tool"
	"github.com/parleyhq/parley/pkg/message"
)

const (
	// defaultHistoryLimit is how many transcript entries are fetched from
	// the platform per message.
	defaultHistoryLimit = 50

	// defaultAwaitTimeout bounds how long an admitted message may wait on
	// the model before it is expired. Generations running tools are exempt.
	defaultAwaitTimeout = 10 * time.Minute
)

// Fixed user-facing texts. Control acknowledgments are constant so users
// can tell a handled command from a generated reply.
const (
	stopAck  = "Stopped. Conversation context cleared."
	resetAck = "Conversation context cleared."

	timeoutNotice      = "Your message timed out before a reply could be generated. Please try again."
	errorNotice        = "Something went wrong while generating a reply. Please try again."
	sessionLimitNotice = "Too many active sessions. Please try again later."
)

// PipelineConfig groups the dependencies for message processing.
// Uses request struct pattern for >3 parameters.
type PipelineConfig struct {
	Store          SessionStore
	Queue          *Queue
	GroupPolicy    GroupPolicy
	Generator      Generator
	Builder        ContextBuilder
	ResponseSender ResponseSender
	Pruner         *lazyPruner
	HookPipeline   *hook.Pipeline
	Logger         *slog.Logger

	// Ledger records tool calls per conversation; control commands clear
	// it. Nil disables ledger maintenance.
	Ledger *ledger.Ledger

	// Registry supplies the tool set offered to the model. Nil means no
	// tools are offered.
	Registry *tool.Registry

	// Grants maps role names to tool scopes; nil grants every
	// non-administrative scope.
	Grants tool.Grants

	// ChannelLookup resolves channels by name for transcript fetches,
	// role lookups, and typing indicators. Nil disables all three.
	ChannelLookup ChannelLookup

	// Prompt supplies system prompt parts per message. Nil means no
	// system prompt.
	Prompt PromptSource

	// AuditLogger, if non-nil, emits session lifecycle events (session_create).
	// session_delete events are emitted by the admin handler.
	AuditLogger *security.AuditLogger

	// Observer, if non-nil, receives message, admission, and generation
	// events for metrics.
	Observer Observer

	// HistoryLimit caps the transcript fetch. Zero means the default (50).
	HistoryLimit int

	// AwaitTimeout bounds the awaiting-model phase. Zero means the
	// default (10 minutes).
	AwaitTimeout time.Duration
}

// PipelineResult contains the outcome of pipeline execution.
type PipelineResult struct {
	Session *Session
	Result  *agent.GenerateResult
	Error   error
	Skipped bool
}

// Pipeline turns one inbound message into at most one outbound reply.
// Admission control is delegated to the Queue: per conversation at most
// one generation is in flight, a newer message preempts one still waiting
// on the model, and a generation running tools wins over new arrivals.
type Pipeline struct {
	cfg PipelineConfig
}

// NewPipeline fills zero config fields with their defaults.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.AwaitTimeout <= 0 {
		cfg.AwaitTimeout = defaultAwaitTimeout
	}
	return &Pipeline{cfg: cfg}
}

// Execute runs the processing pipeline for a single message.
func (p *Pipeline) Execute(ctx context.Context, env envelope) PipelineResult {
	logger := cmp.Or(p.cfg.Logger, slog.Default())

	// Step 1: reception. Log and count the incoming message.
	logger.Info("pipeline: message received", "channel", env.Key.Channel, "chat_id", env.Key.ChatID, "thread_id", env.Key.ThreadID)
	if p.cfg.Observer != nil {
		p.cfg.Observer.MessageReceived(env.Key.Channel)
	}

	// Step 2: group policy filter.
	if !p.cfg.GroupPolicy.ShouldProcess(env.Message) {
		logger.Debug("pipeline: message filtered by group policy", "sender", env.Message.Sender.ID)
		return PipelineResult{Skipped: true}
	}

	// Step 3: control commands, handled outside the queue. The ledger is
	// cleared and a fixed acknowledgment is sent; an in-flight generation
	// keeps running untouched.
	text := env.Message.TextContent()
	if ctxengine.IsResetMarker(text) {
		p.handleControl(ctx, env, text, logger)
		return PipelineResult{Skipped: true}
	}

	// Step 4: session resolution.
	session, created := p.cfg.Store.GetOrCreate(env.Key)
	if session == nil {
		logger.Warn("pipeline: session table full, message dropped", "channel", env.Key.Channel, "chat_id", env.Key.ChatID)
		p.sendNotice(ctx, env.Message, sessionLimitNotice)
		return PipelineResult{Skipped: true}
	}
	if created {
		logger.Info("pipeline: session created", "session_id", session.ID)
		if p.cfg.AuditLogger != nil {
			p.cfg.AuditLogger.Log(security.AuditEvent{Type: security.EventSessionCreate, SessionID: session.ID, Channel: env.Key.Channel, ChatID: env.Key.ChatID})
		}
	}

	// Step 5: before-process hooks. These run before admission so a
	// dropped message never preempts an in-flight generation.
	hookMeta := make(map[string]any)
	if p.cfg.HookPipeline != nil {
		action, err := p.cfg.HookPipeline.RunBeforeProcess(ctx, hookCtx(hook.BeforeProcess, env.Message, session, hookMeta, logger))
		if err != nil {
			logger.Warn("pipeline: before_process hook failed", "error", err)
		}
		if action == hook.ActionDrop {
			logger.Debug("pipeline: message dropped by hook", "message_id", env.Message.ID)
			return PipelineResult{Session: session, Skipped: true}
		}
	}

	// Step 6: admission, one atomic decision per conversation.
	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Tool policy follows the conversation: DM and group chats may grant
	// different access to the same tool.
	genCtx = tool.WithPolicyContext(genCtx, policyContextFor(env.Message))

	entry, decision := p.cfg.Queue.Admit(env.Key, env.Message.ID, cancel)
	if p.cfg.Observer != nil {
		p.cfg.Observer.QueueDecision(decision.String())
	}
	switch decision {
	case DecisionRejected:
		logger.Debug("pipeline: conversation busy running tools, message dropped", "message_id", env.Message.ID, "chat_id", env.Key.ChatID)
		return PipelineResult{Session: session, Skipped: true}
	case DecisionSuperseded:
		logger.Info("pipeline: pending generation superseded", "message_id", env.Message.ID, "chat_id", env.Key.ChatID)
	}

	// Step 7: await watchdog. Expires the generation if it is still
	// waiting on the model when AwaitTimeout elapses. Expiry cancels the
	// token; the generation goroutine then fails settlement and stays
	// silent, so the timeout notice is the message's only outcome.
	watchdog := time.AfterFunc(p.cfg.AwaitTimeout, func() {
		if p.cfg.Queue.ExpireIfAwaiting(env.Key, entry) {
			logger.Warn("pipeline: generation expired awaiting model", "message_id", env.Message.ID, "chat_id", env.Key.ChatID, "timeout", p.cfg.AwaitTimeout)
			p.sendNotice(ctx, env.Message, timeoutNotice)
		}
	})
	defer watchdog.Stop()

	// Step 8: history refetch from the platform.
	history, botID, fetcher := p.fetchHistory(genCtx, env, logger)

	// Step 9: role lookup, best effort; failures grant no roles.
	roles := p.userRoles(genCtx, env, logger)

	// Step 10: context assembly for the model request window.
	var sysParts []string
	if p.cfg.Prompt != nil {
		sysParts = p.cfg.Prompt.SystemParts(env.Message)
	}
	built, err := p.cfg.Builder.Build(genCtx, ctxengine.BuildRequest{
		ChatID:      env.Key.ChatID,
		History:     history,
		BotID:       botID,
		SystemParts: sysParts,
		Fetcher:     fetcher,
	})
	if err != nil {
		if p.cfg.Queue.Settle(env.Key, entry) && genCtx.Err() == nil {
			logger.Error("pipeline: context build failed", "error", err, "session_id", session.ID)
			p.sendNotice(ctx, env.Message, errorNotice)
		}
		return PipelineResult{Session: session, Error: err}
	}

	// Step 11: typing indicator, running until the generation settles.
	var cancelTyping context.CancelFunc
	if tc, ok := channelAs[channel.TypingChannel](p.cfg.ChannelLookup, env.Key.Channel); ok {
		typingCtx, cancelFn := context.WithCancel(genCtx)
		cancelTyping = cancelFn
		channel.StartTypingLoop(typingCtx, tc, env.Message.Chat, 0)
	}

	// Step 12: generation. The first tool call flips the conversation to
	// running-tools, which exempts it from preemption and expiry.
	genStart := time.Now()
	result, genErr := p.cfg.Generator.Generate(genCtx, agent.GenerateRequest{
		ConversationID: env.Key.ConversationID(),
		TriggerHash:    ledger.ContentHash(text),
		Messages:       built.Messages,
		Tools:          p.availableTools(roles),
		OnToolStart: func(name string) {
			if p.cfg.Queue.MarkRunningTools(env.Key, entry) {
				logger.Debug("pipeline: generation running tools", "tool", name, "chat_id", env.Key.ChatID)
			}
		},
	})
	if cancelTyping != nil {
		cancelTyping()
	}
	watchdog.Stop()
	if p.cfg.Observer != nil {
		status := "success"
		switch {
		case genErr != nil:
			status = "error"
		case result.Cancelled:
			status = "cancelled"
		}
		p.cfg.Observer.GenerationFinished(status, time.Since(genStart))
	}

	// Step 13: settlement. Whoever removes the queue entry owns the
	// user-visible outcome; losing means a newer message or the watchdog
	// already spoke for this conversation.
	if !p.cfg.Queue.Settle(env.Key, entry) {
		logger.Debug("pipeline: generation superseded, outcome discarded", "message_id", env.Message.ID, "chat_id", env.Key.ChatID)
		return PipelineResult{Session: session, Skipped: true}
	}

	if genErr != nil {
		logger.Error("pipeline: generation failed", "error", genErr, "session_id", session.ID)
		p.sendNotice(ctx, env.Message, errorNotice)
		return PipelineResult{Session: session, Error: genErr}
	}
	if result.Cancelled {
		// Settlement ruled out supersession and expiry, so the token was
		// cancelled by shutdown. Nothing to say.
		logger.Debug("pipeline: generation cancelled", "message_id", env.Message.ID)
		return PipelineResult{Session: session, Skipped: true}
	}
	if strings.TrimSpace(result.Content) == "" {
		logger.Debug("pipeline: empty reply, nothing sent", "session_id", session.ID)
		p.cfg.Store.Touch(env.Key)
		return PipelineResult{Session: session, Result: &result}
	}

	// Step 14: before-send hooks.
	outbound := buildOutbound(env.Message, result.Content)
	if p.cfg.HookPipeline != nil {
		hctx := hookCtx(hook.BeforeSend, env.Message, session, hookMeta, logger)
		hctx.Outbound = &outbound
		hctx.Result = &result
		if _, err := p.cfg.HookPipeline.RunBeforeSend(ctx, hctx); err != nil {
			logger.Warn("pipeline: before_send hook failed", "error", err)
		}
	}

	// Step 15: send the reply.
	if err := p.cfg.ResponseSender.Send(ctx, outbound); err != nil {
		logger.Error("pipeline: failed to send response", "error", err, "session_id", session.ID)
		return PipelineResult{Session: session, Result: &result, Error: err}
	}
	if p.cfg.Observer != nil {
		p.cfg.Observer.MessageSent(outbound.Channel)
	}

	// Step 16: touch session activity.
	p.cfg.Store.Touch(env.Key)

	// Step 17: after-send hooks, fire-and-forget.
	if p.cfg.HookPipeline != nil {
		hctx := hookCtx(hook.AfterSend, env.Message, session, hookMeta, logger)
		hctx.Outbound = &outbound
		hctx.Result = &result
		p.cfg.HookPipeline.RunAfterSend(ctx, hctx)
	}

	// Lazy pruning of stale sessions rides on successful sends.
	if p.cfg.Pruner != nil {
		if n := p.cfg.Pruner.TryPrune(); n > 0 {
			logger.Info("pipeline: pruned stale sessions", "count", n)
		}
	}

	return PipelineResult{Session: session, Result: &result}
}

// hookCtx assembles the invocation state shared by every hook position.
func hookCtx(pos hook.Position, msg message.InboundMessage, session *Session, meta map[string]any, logger *slog.Logger) *hook.Context {
	return &hook.Context{
		Position: pos,
		Inbound:  msg,
		Session:  &sessionViewAdapter{session: session},
		Metadata: meta,
		Logger:   logger,
	}
}

// channelAs resolves the named channel and narrows it to capability T.
func channelAs[T any](lookup ChannelLookup, name string) (T, bool) {
	var zero T
	if lookup == nil {
		return zero, false
	}
	ch, ok := lookup.Get(name)
	if !ok {
		return zero, false
	}
	v, ok := ch.(T)
	return v, ok
}

// handleControl acknowledges a control command. The conversation's tool
// ledger is cleared; the platform transcript itself is untouched, so the
// next context build sees the command text and truncates at it.
func (p *Pipeline) handleControl(ctx context.Context, env envelope, text string, logger *slog.Logger) {
	cmd := strings.ToLower(strings.TrimSpace(text))
	logger.Info("pipeline: control command", "command", cmd, "chat_id", env.Key.ChatID, "sender", env.Message.Sender.ID)

	if p.cfg.Ledger != nil {
		p.cfg.Ledger.Clear(env.Key.ConversationID())
	}

	ack := resetAck
	if cmd == "stop" {
		ack = stopAck
	}
	p.sendNotice(ctx, env.Message, ack)
}

// fetchHistory pulls the recent transcript from the message's channel and
// normalizes it to chronological order. Fetch failures degrade to the
// trigger message alone so a platform hiccup never swallows a reply.
func (p *Pipeline) fetchHistory(ctx context.Context, env envelope, logger *slog.Logger) ([]message.HistoryEntry, string, ctxengine.ReferenceFetcher) {
	fallback := []message.HistoryEntry{historyEntryFromInbound(env.Message)}

	var botID string
	if ip, ok := channelAs[channel.IdentityProvider](p.cfg.ChannelLookup, env.Key.Channel); ok {
		botID = ip.BotIdentity().ID
	}
	hp, ok := channelAs[channel.HistoryProvider](p.cfg.ChannelLookup, env.Key.Channel)
	if !ok {
		return fallback, botID, nil
	}

	entries, err := hp.FetchHistory(ctx, env.Key.ChatID, p.cfg.HistoryLimit)
	if err != nil {
		logger.Warn("pipeline: history fetch failed, using trigger message only", "chat_id", env.Key.ChatID, "error", err)
		return fallback, botID, hp
	}

	// Channels return newest first; the context builder wants oldest first.
	slices.Reverse(entries)

	if !slices.ContainsFunc(entries, func(e message.HistoryEntry) bool { return e.ID == env.Message.ID }) {
		entries = append(entries, historyEntryFromInbound(env.Message))
	}
	return entries, botID, hp
}

// userRoles resolves the sender's platform roles for tool filtering.
func (p *Pipeline) userRoles(ctx context.Context, env envelope, logger *slog.Logger) []string {
	rp, ok := channelAs[channel.RoleProvider](p.cfg.ChannelLookup, env.Key.Channel)
	if !ok {
		return nil
	}
	roles, err := rp.UserRoles(ctx, env.Key.ChatID, env.Message.Sender.ID)
	if err != nil {
		logger.Warn("pipeline: role lookup failed, granting no roles", "sender", env.Message.Sender.ID, "error", err)
		return nil
	}
	return roles
}

// availableTools returns the wire definitions of the tools the sender may
// use, per the registry and role grants.
func (p *Pipeline) availableTools(roles []string) []provider.ToolDefinition {
	if p.cfg.Registry == nil {
		return nil
	}
	return toolDefinitions(tool.Filter(roles, p.cfg.Grants, p.cfg.Registry.All()))
}

// policyContextFor maps a message to the tool policy context it executes
// under.
func policyContextFor(msg message.InboundMessage) tool.PolicyContext {
	if msg.IsDirectMessage() {
		return tool.PolicyContextDM
	}
	return tool.PolicyContextGroup
}

// sendNotice sends a user-facing service message. Never panics.
func (p *Pipeline) sendNotice(ctx context.Context, original message.InboundMessage, text string) {
	notice := message.NewTextMessage(original.Chat, text)
	notice.Channel = original.Channel
	notice.ThreadID = original.ThreadID
	notice.ReplyToID = original.ID
	if err := p.cfg.ResponseSender.Send(ctx, notice); err != nil {
		if p.cfg.Logger != nil {
			p.cfg.Logger.Error("pipeline: failed to send notice", "error", err)
		}
		return
	}
	if p.cfg.Observer != nil {
		p.cfg.Observer.MessageSent(notice.Channel)
	}
}
