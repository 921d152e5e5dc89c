package usage

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestInMemoryRecorder_Accumulates(t *testing.T) {
	t.Parallel()

	r := NewInMemoryRecorder()
	ctx := context.Background()

	if err := r.Record(ctx, Entry{Day: "2025-03-01", Model: "claude-sonnet", InputTokens: 100, OutputTokens: 40}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := r.Record(ctx, Entry{Day: "2025-03-01", Model: "claude-sonnet", InputTokens: 50, OutputTokens: 10}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := r.Record(ctx, Entry{Day: "2025-03-01", Model: "gpt-4o", InputTokens: 7, OutputTokens: 3}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := r.Totals(ctx, "2025-03-01")
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Totals returned %d entries, want 2", len(entries))
	}

	// Sorted by model: claude-sonnet before gpt-4o.
	if entries[0].Model != "claude-sonnet" || entries[0].InputTokens != 150 || entries[0].OutputTokens != 50 || entries[0].Requests != 2 {
		t.Errorf("claude-sonnet entry = %+v, want 150/50 tokens over 2 requests", entries[0])
	}
	if entries[1].Model != "gpt-4o" || entries[1].Requests != 1 {
		t.Errorf("gpt-4o entry = %+v, want 1 request", entries[1])
	}
}

func TestInMemoryRecorder_UnknownDay(t *testing.T) {
	t.Parallel()

	r := NewInMemoryRecorder()
	entries, err := r.Totals(context.Background(), "1999-01-01")
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Totals for unknown day = %v, want empty", entries)
	}
}

func TestInMemoryRecorder_InvalidEntry(t *testing.T) {
	t.Parallel()

	r := NewInMemoryRecorder()
	if err := r.Record(context.Background(), Entry{Model: "m"}); err != ErrInvalidEntry {
		t.Errorf("Record without day = %v, want ErrInvalidEntry", err)
	}
	if err := r.Record(context.Background(), Entry{Day: "2025-03-01"}); err != ErrInvalidEntry {
		t.Errorf("Record without model = %v, want ErrInvalidEntry", err)
	}
}

func TestInMemoryRecorder_Concurrent(t *testing.T) {
	t.Parallel()

	r := NewInMemoryRecorder()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Record(ctx, Entry{Day: "2025-03-02", Model: "claude-sonnet", InputTokens: 1, OutputTokens: 1})
		}()
	}
	wg.Wait()

	entries, _ := r.Totals(ctx, "2025-03-02")
	if len(entries) != 1 || entries[0].InputTokens != 50 || entries[0].Requests != 50 {
		t.Errorf("after 50 concurrent records: %+v", entries)
	}
}

func TestInMemoryRecorder_PruneBefore(t *testing.T) {
	t.Parallel()

	r := NewInMemoryRecorder()
	ctx := context.Background()

	for _, e := range []Entry{
		{Day: "2025-03-01", Model: "claude-sonnet", InputTokens: 1},
		{Day: "2025-03-01", Model: "gpt-4o", InputTokens: 1},
		{Day: "2025-03-05", Model: "claude-sonnet", InputTokens: 1},
		{Day: "2025-03-09", Model: "claude-sonnet", InputTokens: 1},
	} {
		if err := r.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	removed, err := r.PruneBefore(ctx, "2025-03-05")
	if err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2 (both models on 03-01)", removed)
	}

	// The cutoff day itself survives.
	entries, _ := r.Totals(ctx, "2025-03-05")
	if len(entries) != 1 {
		t.Errorf("cutoff day entries = %d, want 1", len(entries))
	}
	entries, _ = r.Totals(ctx, "2025-03-01")
	if len(entries) != 0 {
		t.Errorf("pruned day entries = %d, want 0", len(entries))
	}
}

func TestDayOf(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+9", 9*3600)
	ts := time.Date(2025, 3, 1, 2, 30, 0, 0, loc) // 2025-02-28 17:30 UTC
	if got := DayOf(ts); got != "2025-02-28" {
		t.Errorf("DayOf = %q, want 2025-02-28 (UTC day)", got)
	}
}
