package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/parleyhq/parley/internal/usage"
)

// recorder implements usage.Recorder backed by SQLite.
type recorder struct {
	db *sql.DB
}

// Record adds e's token counts to the running totals for (e.Day, e.Model).
func (r *recorder) Record(ctx context.Context, e usage.Entry) error {
	if e.Day == "" || e.Model == "" {
		return usage.ErrInvalidEntry
	}

	// An entry without an explicit request count stands for one request.
	requests := e.Requests
	if requests <= 0 {
		requests = 1
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO usage_daily (day, model, input_tokens, output_tokens, requests)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(day, model) DO UPDATE SET
			input_tokens  = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens,
			requests      = requests + excluded.requests,
			updated_at    = strftime('%Y-%m-%dT%H:%M:%fZ','now')`,
		e.Day, e.Model, e.InputTokens, e.OutputTokens, requests,
	)
	if err != nil {
		return fmt.Errorf("usage.sqlite: record: %w", err)
	}
	return nil
}

// Totals returns the accumulated entries for a day, ordered by model.
// An unknown day returns an empty slice.
func (r *recorder) Totals(ctx context.Context, day string) ([]usage.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT day, model, input_tokens, output_tokens, requests
		FROM usage_daily
		WHERE day = ?
		ORDER BY model ASC`,
		day,
	)
	if err != nil {
		return nil, fmt.Errorf("usage.sqlite: totals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []usage.Entry{}
	for rows.Next() {
		var e usage.Entry
		if err := rows.Scan(&e.Day, &e.Model, &e.InputTokens, &e.OutputTokens, &e.Requests); err != nil {
			return nil, fmt.Errorf("usage.sqlite: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("usage.sqlite: totals rows: %w", err)
	}

	return entries, nil
}

// PruneBefore drops all days strictly before day. YYYY-MM-DD keys order
// lexically, so a plain string compare is a date compare. It returns the
// number of per-model rows removed.
func (r *recorder) PruneBefore(ctx context.Context, day string) (int, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM usage_daily WHERE day < ?", day)
	if err != nil {
		return 0, fmt.Errorf("usage.sqlite: prune: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("usage.sqlite: prune rows affected: %w", err)
	}
	return int(removed), nil
}
