package security

import (
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrRateLimited reports that a window's ceiling was hit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limit kinds. Each kind has its own window and configured ceiling.
const (
	// LimitMessage throttles inbound messages, keyed by sender ID.
	LimitMessage = "message"

	// LimitToolCall throttles tool executions across the whole process.
	LimitToolCall = "tool_call"

	// LimitAuth throttles gateway auth attempts, keyed by remote host.
	LimitAuth = "auth"

	// LimitToken bounds token consumption per hour. Disabled unless
	// TokensPerHour is set.
	LimitToken = "token"
)

// RateLimitConfig sets the per-window ceilings.
type RateLimitConfig struct {
	MessagesPerMin  int `yaml:"messages_per_min"`
	ToolCallsPerMin int `yaml:"tool_calls_per_min"`
	AuthPerMin      int `yaml:"auth_per_min"`
	TokensPerHour   int `yaml:"tokens_per_hour"`

	// MaxSessions caps live sessions; enforced by the router, not here.
	MaxSessions int `yaml:"max_sessions"`
}

// rateLimitConfigDefaults returns a config with sensible defaults.
// MessagesPerMin is per sender, not process-wide, so it is sized for
// one human typing rather than a whole group.
func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		MaxSessions:     100,
		MessagesPerMin:  30,
		ToolCallsPerMin: 300,
		AuthPerMin:      10,
		TokensPerHour:   0, // 0 = unlimited
	}
}

// RateLimiter implements sliding-window rate limiting with per-key buckets.
// The key scopes the window: the router passes the sender ID so one noisy
// user cannot starve a group, the gateway passes the remote host, and
// callers that want a single process-wide window pass "".
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	config  RateLimitConfig
	now     func() time.Time
}

type bucketKey struct {
	kind string
	key  string
}

// bucket tracks timestamps of recent events, oldest first.
type bucket struct {
	events []time.Time
}

// sweepThreshold bounds the bucket map. Once the map grows past it,
// fully drained buckets are dropped on the next check.
const sweepThreshold = 1024

// NewRateLimiter builds a limiter from cfg, filling zero or negative
// fields from the defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	d := rateLimitConfigDefaults()
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = d.MaxSessions
	}
	if cfg.MessagesPerMin <= 0 {
		cfg.MessagesPerMin = d.MessagesPerMin
	}
	if cfg.ToolCallsPerMin <= 0 {
		cfg.ToolCallsPerMin = d.ToolCallsPerMin
	}
	if cfg.AuthPerMin <= 0 {
		cfg.AuthPerMin = d.AuthPerMin
	}

	return &RateLimiter{
		config:  cfg,
		now:     time.Now,
		buckets: make(map[bucketKey]*bucket),
	}
}

// Allow checks whether one event of the given kind is allowed for key.
// Returns nil if allowed, ErrRateLimited if the limit is exceeded.
func (rl *RateLimiter) Allow(kind, key string) error {
	return rl.AllowN(kind, key, 1)
}

// AllowN checks whether n events of the given kind are allowed for key.
// Useful for token counting where a single request consumes many units.
func (rl *RateLimiter) AllowN(kind, key string, n int) error {
	limit, window, limited := rl.limitFor(kind)
	if !limited {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if len(rl.buckets) > sweepThreshold {
		rl.sweepLocked(now)
	}

	bk := bucketKey{kind: kind, key: key}
	b := rl.buckets[bk]
	if b == nil {
		b = &bucket{}
		rl.buckets[bk] = b
	}

	b.evict(now.Add(-window))

	if len(b.events)+n > limit {
		return ErrRateLimited
	}
	b.add(now, n)
	return nil
}

// MaxSessions reports the session cap the router should enforce.
func (rl *RateLimiter) MaxSessions() int {
	return rl.config.MaxSessions
}

// limitFor maps a kind to its ceiling and window. Unknown kinds and
// unset optional limits report limited=false, meaning no throttling.
func (rl *RateLimiter) limitFor(kind string) (limit int, window time.Duration, limited bool) {
	switch kind {
	case LimitMessage:
		return rl.config.MessagesPerMin, time.Minute, true
	case LimitToolCall:
		return rl.config.ToolCallsPerMin, time.Minute, true
	case LimitAuth:
		return rl.config.AuthPerMin, time.Minute, true
	case LimitToken:
		return rl.config.TokensPerHour, time.Hour, rl.config.TokensPerHour > 0
	default:
		return 0, 0, false
	}
}

// sweepLocked drops buckets whose every event has aged out of its window.
// Callers must hold rl.mu.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	for bk, b := range rl.buckets {
		_, window, limited := rl.limitFor(bk.kind)
		if !limited {
			delete(rl.buckets, bk)
			continue
		}
		b.evict(now.Add(-window))
		if len(b.events) == 0 {
			delete(rl.buckets, bk)
		}
	}
}

// add records n events at t.
func (b *bucket) add(t time.Time, n int) {
	for range n {
		b.events = append(b.events, t)
	}
}

// evict removes events before cutoff. Events are chronologically ordered,
// so everything up to the first survivor goes.
func (b *bucket) evict(cutoff time.Time) {
	i := slices.IndexFunc(b.events, func(e time.Time) bool { return !e.Before(cutoff) })
	if i < 0 {
		b.events = b.events[:0]
		return
	}
	b.events = b.events[i:]
}
