// Package crontest provides canned cron doubles for tests in other
// packages.
package crontest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/parleyhq/parley/internal/cron"
)

// MockJob is a configurable cron.Job. The zero value is runnable; set
// NameVal and ScheduleVal before registering it with a scheduler.
type MockJob struct {
	// NameVal and ScheduleVal feed Name and Schedule verbatim.
	NameVal     string
	ScheduleVal string
	// RunFunc, when set, supplies Run's result.
	RunFunc func(ctx context.Context) error

	calls atomic.Int64
}

// Interface guards.
var (
	_ cron.Job          = (*MockJob)(nil)
	_ cron.SessionStore = (*MockSessionStore)(nil)
)

func (m *MockJob) Name() string     { return m.NameVal }
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run counts the call, then delegates to RunFunc when set.
func (m *MockJob) Run(ctx context.Context) error {
	m.calls.Add(1)
	if m.RunFunc == nil {
		return nil
	}
	return m.RunFunc(ctx)
}

// CallCount reports how many times Run ran.
func (m *MockJob) CallCount() int { return int(m.calls.Load()) }

// MockSessionStore is a canned cron.SessionStore backed by PruneFunc.
type MockSessionStore struct {
	PruneFunc func(maxIdle time.Duration) int

	pruneCalls atomic.Int64
}

// Prune counts the call, then delegates to PruneFunc when set.
func (m *MockSessionStore) Prune(maxIdle time.Duration) int {
	m.pruneCalls.Add(1)
	if m.PruneFunc == nil {
		return 0
	}
	return m.PruneFunc(maxIdle)
}

// PruneCallCount reports how many times Prune ran.
func (m *MockSessionStore) PruneCallCount() int { return int(m.pruneCalls.Load()) }
