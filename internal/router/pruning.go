package router

import (
	"sync"
	"time"
)

// defaultSweepInterval spaces out full-store sweeps.
const defaultSweepInterval = 5 * time.Minute

// lazyPruner sweeps idle sessions out of the store, at most once per
// interval, so that a burst of inbound traffic does not turn into a
// burst of full map scans. Queue entries need no sweeping: they are
// removed at settlement.
type lazyPruner struct {
	store   SessionStore
	maxIdle time.Duration

	mu        sync.Mutex
	interval  time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLazyPruner(store SessionStore, maxIdle time.Duration) *lazyPruner {
	return &lazyPruner{
		store:    store,
		maxIdle:  maxIdle,
		interval: defaultSweepInterval,
		now:      time.Now,
	}
}

// TryPrune sweeps the store unless a sweep already ran within the
// current interval. It reports how many sessions were removed; a
// rate-limited call reports zero.
func (p *lazyPruner) TryPrune() int {
	if !p.due() {
		return 0
	}
	return p.store.Prune(p.maxIdle)
}

// due reports whether the interval has elapsed since the last sweep,
// claiming the slot when it has. Claiming under the lock means only
// one caller per interval proceeds to the actual sweep.
func (p *lazyPruner) due() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if now.Sub(p.lastSweep) < p.interval {
		return false
	}
	p.lastSweep = now
	return true
}
