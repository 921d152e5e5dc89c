package ctxengine

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/parleyhq/parley/internal/provider"
)

// ErrCompactionFailed reports that the summarizer could not condense the
// conversation head.
var ErrCompactionFailed = errors.New("ctxengine: compaction failed")

// Summarizer condenses a run of turns into prose. Production code backs it
// with the provider chain's summary role.
type Summarizer interface {
	Summarize(ctx context.Context, messages []provider.LLMMessage) (string, error)
}

// Compactor folds long histories down to a summary turn plus a recent tail.
type Compactor struct {
	summarizer Summarizer
	config     ContextConfig
}

// NewCompactor creates a Compactor. A nil summarizer disables compaction
// entirely: long histories are passed through unchanged.
func NewCompactor(summarizer Summarizer, cfg ContextConfig) *Compactor {
	return &Compactor{summarizer: summarizer, config: cfg.withDefaults()}
}

// ShouldCompact reports whether the turn sequence exceeds the compaction
// threshold.
func (c *Compactor) ShouldCompact(turns []provider.LLMMessage) bool {
	return len(turns) > c.config.MaxTurns
}

// Compact folds the oldest SummarizeOldest turns into one synthetic system
// turn and keeps only the RetainRecent most recent turns after it. Turns
// between the summarized head and the retained tail are discarded. The
// reduction is one-shot; it is never applied recursively within a build.
//
// If the sequence is too short for the head and tail to be disjoint, or no
// summarizer is configured, the input is returned unchanged.
func (c *Compactor) Compact(ctx context.Context, turns []provider.LLMMessage) ([]provider.LLMMessage, error) {
	oldest := c.config.SummarizeOldest
	retain := c.config.RetainRecent
	if c.summarizer == nil || len(turns) <= oldest+retain {
		return turns, nil
	}

	summary, err := c.summarizer.Summarize(ctx, turns[:oldest])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompactionFailed, err)
	}

	recent := turns[len(turns)-retain:]
	out := make([]provider.LLMMessage, 0, 1+len(recent))
	if summary != "" {
		out = append(out, provider.LLMMessage{
			Role:    provider.MessageRoleSystem,
			Content: "[Conversation Summary]\n" + summary,
		})
	}
	return append(out, recent...), nil
}

// EmergencyCompact is a last-resort compaction triggered by ErrContextLength.
// It keeps only the EmergencyRetain most recent turns without attempting a
// summary (the provider may be unable to process any request at this point).
// The returned slice is a copy so the caller's original is not mutated.
func (c *Compactor) EmergencyCompact(_ context.Context, turns []provider.LLMMessage) ([]provider.LLMMessage, error) {
	retain := c.config.EmergencyRetain
	if len(turns) <= retain {
		return turns, nil
	}
	return slices.Clone(turns[len(turns)-retain:]), nil
}
