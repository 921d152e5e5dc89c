// Package usage defines token usage recording with an in-memory
// implementation. Persistent recording lives in modules (usage.sqlite).
package usage

import (
	"context"
	"time"
)

// Entry is one day's accumulated token usage for a model.
type Entry struct {
	Day          string // YYYY-MM-DD, UTC
	Model        string
	InputTokens  int
	OutputTokens int
	Requests     int
}

// Recorder accumulates token usage per (day, model).
// Implementations must be safe for concurrent use.
type Recorder interface {
	// Record adds e's token counts to the running totals for (e.Day, e.Model).
	Record(ctx context.Context, e Entry) error

	// Totals returns the accumulated entries for a day, ordered by model.
	// An unknown day returns an empty slice, not an error.
	Totals(ctx context.Context, day string) ([]Entry, error)
}

// DayOf renders t as the UTC day key used by Recorder entries.
func DayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
