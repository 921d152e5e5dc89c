package cron

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/parleyhq/parley/internal/usage"
)

// SessionStore is the subset of the router's session store needed by cron
// jobs. Defined here to avoid a circular dependency on the router package.
type SessionStore interface {
	Prune(maxIdle time.Duration) int
}

// SessionCleanupJob evicts sessions that sat idle longer than MaxIdle.
type SessionCleanupJob struct {
	Store        SessionStore
	MaxIdle      time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

var _ Job = (*SessionCleanupJob)(nil)

func (j *SessionCleanupJob) Name() string { return "session_cleanup" }

// Schedule returns ScheduleExpr, defaulting to every five minutes.
func (j *SessionCleanupJob) Schedule() string {
	return cmp.Or(j.ScheduleExpr, "*/5 * * * *")
}

// Run sweeps the store once, logging when anything was evicted.
func (j *SessionCleanupJob) Run(_ context.Context) error {
	pruned := j.Store.Prune(j.MaxIdle)
	if pruned > 0 {
		j.Logger.Info("cron: pruned idle sessions", "count", pruned)
	}
	return nil
}

// UsagePruner deletes accumulated usage rows for days before a cutoff.
// Recorders that persist history implement it; the rollup job treats it
// as optional.
type UsagePruner interface {
	PruneBefore(ctx context.Context, day string) (int, error)
}

// UsageRollupJob logs a summary of the previous day's token usage and,
// when a pruner and retention window are configured, trims older days.
type UsageRollupJob struct {
	Recorder      usage.Recorder
	Pruner        UsagePruner // optional
	RetentionDays int         // 0 = keep everything
	Logger        *slog.Logger
	ScheduleExpr  string           // empty = default "10 0 * * *"
	Now           func() time.Time // test clock, defaults to time.Now
}

var _ Job = (*UsageRollupJob)(nil)

func (j *UsageRollupJob) Name() string { return "usage_rollup" }

// Schedule returns ScheduleExpr, defaulting to ten past midnight.
func (j *UsageRollupJob) Schedule() string {
	return cmp.Or(j.ScheduleExpr, "10 0 * * *")
}

// Run summarizes yesterday's usage (UTC day keys) and applies retention.
func (j *UsageRollupJob) Run(ctx context.Context) error {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}

	day := usage.DayOf(now().AddDate(0, 0, -1))
	entries, err := j.Recorder.Totals(ctx, day)
	if err != nil {
		return fmt.Errorf("cron: usage rollup for %s: %w", day, err)
	}

	var input, output, requests int
	for _, e := range entries {
		input += e.InputTokens
		output += e.OutputTokens
		requests += e.Requests
	}
	j.Logger.Info("cron: daily usage summary",
		"day", day,
		"models", len(entries),
		"requests", requests,
		"input_tokens", input,
		"output_tokens", output,
	)

	if j.Pruner == nil || j.RetentionDays <= 0 {
		return nil
	}

	cutoff := usage.DayOf(now().AddDate(0, 0, -j.RetentionDays))
	removed, err := j.Pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cron: usage retention sweep: %w", err)
	}
	if removed > 0 {
		j.Logger.Info("cron: trimmed usage history", "before", cutoff, "rows", removed)
	}
	return nil
}
