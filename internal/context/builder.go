package ctxengine

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/parleyhq/parley/internal/ledger"
	"github.com/parleyhq/parley/internal/provider"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/transcribe"
	"github.com/parleyhq/parley/pkg/message"
)

// ReferenceFetcher resolves a quoted message that lies outside the fetched
// history window. Channel adapters with native history satisfy it.
type ReferenceFetcher interface {
	FetchByID(ctx context.Context, chatID, messageID string) (*message.HistoryEntry, error)
}

// BuildRequest contains the inputs for one context build.
type BuildRequest struct {
	// ChatID identifies the conversation the history belongs to.
	ChatID string

	// History is the fetched window of past messages, oldest first.
	History []message.HistoryEntry

	// BotID is the author id that marks an entry as the bot's own turn.
	BotID string

	// SystemParts are conversation-independent system turns (persona,
	// date, channel context) prepended to the sequence in order.
	SystemParts []string

	// Fetcher resolves quoted messages absent from the window. Optional;
	// without it out-of-window references are omitted.
	Fetcher ReferenceFetcher
}

// BuildResult is the output of a context build.
type BuildResult struct {
	// Messages is the model input sequence: system turns, then history
	// turns with replayed tool calls, possibly compacted.
	Messages []provider.LLMMessage

	// Truncated is true if a reset marker cut the history window.
	Truncated bool

	// Summarized is true if compaction replaced old turns with a summary.
	Summarized bool
}

// BuilderOption configures optional Builder collaborators.
type BuilderOption func(*Builder)

// WithTranscriber attaches a voice-note transcriber. Without one, voice
// notes are skipped.
func WithTranscriber(t transcribe.Transcriber) BuilderOption {
	return func(b *Builder) { b.transcriber = t }
}

// WithCompactor attaches a compactor for over-threshold summarization.
func WithCompactor(c *Compactor) BuilderOption {
	return func(b *Builder) { b.compactor = c }
}

// WithFetchClient sets the HTTP client used to download voice-note payloads.
func WithFetchClient(client *http.Client) BuilderOption {
	return func(b *Builder) { b.client = client }
}

// WithURLFilter restricts which domains voice-note downloads may reach.
// Attachment URLs come from the platform, so the operator can pin fetches
// to the platform's CDN.
func WithURLFilter(f *security.URLFilter) BuilderOption {
	return func(b *Builder) { b.urlFilter = f }
}

// WithLogger injects a structured logger.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) { b.log = l }
}

// Builder turns a window of platform history into the model input sequence.
type Builder struct {
	ledger      *ledger.Ledger
	transcriber transcribe.Transcriber
	compactor   *Compactor
	client      *http.Client
	urlFilter   *security.URLFilter
	log         *slog.Logger
	config      ContextConfig
}

// NewBuilder creates a Builder reading tool-call history from led.
func NewBuilder(led *ledger.Ledger, cfg ContextConfig, opts ...BuilderOption) *Builder {
	b := &Builder{
		ledger: led,
		config: cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	return b
}

// Build assembles the model input sequence from the given history window.
//
// The build process:
//  1. Truncate at the most recent reset marker, if any.
//  2. Convert each remaining entry to a turn (role by author, attachments,
//     voice transcripts, embeds, quoted reference, serialized payload).
//  3. Replay recorded tool calls after each turn whose content hash has
//     Ledger entries.
//  4. Compact when the turn count exceeds the threshold; compaction
//     failure degrades to the full sequence.
//  5. Prepend the system turns.
//
// Per-field failures (transcription, reference fetch) are logged and
// omitted; only context cancellation aborts the build.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (BuildResult, error) {
	history, truncated := b.truncateAtReset(req.History)

	window := make(map[string]*message.HistoryEntry, len(history))
	for i := range history {
		if id := history[i].ID; id != "" {
			window[id] = &history[i]
		}
	}

	turns := make([]provider.LLMMessage, 0, len(history))
	for i := range history {
		if err := ctx.Err(); err != nil {
			return BuildResult{}, err
		}
		entry := &history[i]
		turns = append(turns, b.buildTurn(ctx, req, window, entry))
		if records, ok := b.ledger.Lookup(ledger.ContentHash(entry.Content)); ok {
			turns = append(turns, replayRecords(records)...)
		}
	}

	turns, summarized := b.compact(ctx, turns)

	messages := make([]provider.LLMMessage, 0, len(req.SystemParts)+len(turns))
	for _, part := range req.SystemParts {
		if part == "" {
			continue
		}
		messages = append(messages, provider.LLMMessage{
			Role:    provider.MessageRoleSystem,
			Content: part,
		})
	}
	messages = append(messages, turns...)

	return BuildResult{
		Messages:   messages,
		Truncated:  truncated,
		Summarized: summarized,
	}, nil
}

// truncateAtReset drops every entry at or before the most recent reset
// marker. The marker entry itself is never part of the result.
func (b *Builder) truncateAtReset(history []message.HistoryEntry) ([]message.HistoryEntry, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if IsResetMarker(history[i].Content) {
			return history[i+1:], true
		}
	}
	return history, false
}

// compact applies over-threshold summarization. A compaction error degrades
// to the full unsummarized sequence so a failing summarizer never blocks
// the turn.
func (b *Builder) compact(ctx context.Context, turns []provider.LLMMessage) ([]provider.LLMMessage, bool) {
	if b.compactor == nil || !b.compactor.ShouldCompact(turns) {
		return turns, false
	}
	compacted, err := b.compactor.Compact(ctx, turns)
	if err != nil {
		b.log.Warn("context: compaction failed, sending full history",
			"turns", len(turns), "error", err)
		return turns, false
	}
	return compacted, len(compacted) != len(turns)
}

// IsResetMarker reports whether text is one of the reserved commands that
// reset conversation context. Matching is on the trimmed, lowercased text.
func IsResetMarker(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "stop", "reset":
		return true
	}
	return false
}

// replayRecords converts recorded tool calls into the turns the model
// originally produced: one assistant turn requesting the calls, then one
// tool turn per result, in recorded order.
func replayRecords(records []ledger.Record) []provider.LLMMessage {
	calls := make([]provider.ToolCall, 0, len(records))
	for _, r := range records {
		calls = append(calls, provider.ToolCall{
			ID:        r.ID,
			Name:      r.Name,
			Arguments: r.Arguments,
		})
	}

	turns := make([]provider.LLMMessage, 0, 1+len(records))
	turns = append(turns, provider.LLMMessage{
		Role:      provider.MessageRoleAssistant,
		ToolCalls: calls,
	})
	for _, r := range records {
		turns = append(turns, provider.LLMMessage{
			Role:    provider.MessageRoleTool,
			Content: r.Output,
			Name:    r.Name,
			ToolID:  r.ID,
			IsError: r.IsError,
		})
	}
	return turns
}
