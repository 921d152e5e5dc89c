package usage

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRecorder is a thread-safe Recorder that keeps totals in process
// memory. It backs tests and deployments without the sqlite module.
type InMemoryRecorder struct {
	mu     sync.RWMutex
	totals map[string]map[string]Entry // day → model → entry
}

// Compile-time interface check.
var _ Recorder = (*InMemoryRecorder)(nil)

// NewInMemoryRecorder creates an empty recorder.
func NewInMemoryRecorder() *InMemoryRecorder {
	return &InMemoryRecorder{
		totals: make(map[string]map[string]Entry),
	}
}

// Record implements Recorder.
func (r *InMemoryRecorder) Record(_ context.Context, e Entry) error {
	if e.Day == "" || e.Model == "" {
		return ErrInvalidEntry
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	day := r.totals[e.Day]
	if day == nil {
		day = make(map[string]Entry)
		r.totals[e.Day] = day
	}

	acc := day[e.Model]
	acc.Day = e.Day
	acc.Model = e.Model
	acc.InputTokens += e.InputTokens
	acc.OutputTokens += e.OutputTokens
	if e.Requests > 0 {
		acc.Requests += e.Requests
	} else {
		acc.Requests++
	}
	day[e.Model] = acc
	return nil
}

// Totals implements Recorder.
func (r *InMemoryRecorder) Totals(_ context.Context, day string) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := r.totals[day]
	entries := make([]Entry, 0, len(models))
	for _, e := range models {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Model < entries[j].Model })
	return entries, nil
}

// PruneBefore drops all days strictly before day. YYYY-MM-DD keys order
// lexically, so a plain string compare is a date compare. It returns the
// number of per-model rows removed.
func (r *InMemoryRecorder) PruneBefore(_ context.Context, day string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for d, models := range r.totals {
		if d < day {
			removed += len(models)
			delete(r.totals, d)
		}
	}
	return removed, nil
}
