package provider

import (
	"sync"
	"time"
)

// healthPhase classifies how usable a chain link currently is.
type healthPhase int

const (
	phaseHealthy  healthPhase = iota
	phaseCooldown             // recent failure, waiting out a backoff
	phaseDead                 // failure streak hit the limit
)

func (p healthPhase) String() string {
	switch p {
	case phaseHealthy:
		return "healthy"
	case phaseCooldown:
		return "cooldown"
	case phaseDead:
		return "dead"
	}
	return "unknown"
}

// HealthConfig controls the failure bookkeeping for one chain entry.
type HealthConfig struct {
	// InitialBackoff is the cooldown after the first failure.
	// Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the doubling cooldown. Default: 60s.
	MaxBackoff time.Duration

	// MaxFailures is the length of the consecutive failure streak that
	// marks the provider dead. Default: 5.
	MaxFailures int

	// CheckInterval is the cadence of active recovery probes.
	// Default: 10s.
	CheckInterval time.Duration
}

func (c *HealthConfig) normalize() {
	c.InitialBackoff = durOr(c.InitialBackoff, time.Second)
	c.MaxBackoff = durOr(c.MaxBackoff, 60*time.Second)
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	c.CheckInterval = durOr(c.CheckInterval, 10*time.Second)
}

// probeEvery returns the configured CheckInterval, substituting the
// default for unset or invalid values.
func (c HealthConfig) probeEvery() time.Duration {
	return durOr(c.CheckInterval, 10*time.Second)
}

// durOr returns d, or fallback when d is zero or negative.
func durOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// healthMonitor tracks the failure streak of a single link and decides
// when it may be tried again. Cooldowns double per failure up to
// MaxBackoff; once the streak reaches MaxFailures the link is parked as
// dead until an active probe revives it.
type healthMonitor struct {
	cfg HealthConfig

	// onTransition fires outside the lock on every phase change, so the
	// chain can log transitions without holding the monitor lock.
	onTransition func(from, to healthPhase)

	mu       sync.Mutex
	phase    healthPhase
	failures int
	retryAt  time.Time

	// clock is swappable in tests.
	clock func() time.Time
}

func newHealthMonitor(cfg HealthConfig) *healthMonitor {
	cfg.normalize()
	return &healthMonitor{cfg: cfg, clock: time.Now}
}

// available reports whether the link may receive a request right now. A
// link in cooldown becomes available again once its backoff lapses.
func (m *healthMonitor) available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.phase {
	case phaseCooldown:
		return !m.clock().Before(m.retryAt)
	case phaseDead:
		return false
	}
	return true
}

// noteSuccess clears the failure streak and restores the healthy phase.
func (m *healthMonitor) noteSuccess() {
	m.mu.Lock()
	from := m.phase
	m.phase = phaseHealthy
	m.failures = 0
	m.retryAt = time.Time{}
	m.mu.Unlock()

	m.announce(from, phaseHealthy)
}

// noteFailure extends the failure streak, entering cooldown or, once
// the streak reaches MaxFailures, the dead phase.
func (m *healthMonitor) noteFailure() {
	m.mu.Lock()
	from := m.phase
	m.failures++
	to := phaseCooldown
	if m.failures >= m.cfg.MaxFailures {
		to = phaseDead
	} else {
		m.retryAt = m.clock().Add(m.backoffLocked())
	}
	m.phase = to
	m.mu.Unlock()

	m.announce(from, to)
}

func (m *healthMonitor) announce(from, to healthPhase) {
	if from != to && m.onTransition != nil {
		m.onTransition(from, to)
	}
}

// backoffLocked derives the cooldown for the current streak length:
// InitialBackoff doubled per failure, capped at MaxBackoff. Callers
// hold m.mu.
func (m *healthMonitor) backoffLocked() time.Duration {
	d := m.cfg.InitialBackoff
	for i := 1; i < m.failures && d < m.cfg.MaxBackoff; i++ {
		d *= 2
	}
	if d > m.cfg.MaxBackoff {
		d = m.cfg.MaxBackoff
	}
	return d
}

// wantsProbe reports whether an active health check is due: the link is
// dead, or its cooldown lapsed without traffic confirming recovery.
func (m *healthMonitor) wantsProbe() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.phase {
	case phaseDead:
		return true
	case phaseCooldown:
		return !m.clock().Before(m.retryAt)
	}
	return false
}

func (m *healthMonitor) currentPhase() healthPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *healthMonitor) failureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// backoff returns the cooldown in effect for the current streak, zero
// when healthy.
func (m *healthMonitor) backoff() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == phaseHealthy {
		return 0
	}
	return m.backoffLocked()
}
