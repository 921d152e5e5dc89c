package provider

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// ChainEntry configures one provider in the chain.
type ChainEntry struct {
	// Name identifies the entry in logs and health reports.
	Name     string
	Provider Provider
	Role     Role

	// Auth, when set, supplies the rotating credentials for the provider.
	Auth *AuthProfile

	// Health tunes the entry's failure accounting and probe cadence.
	Health HealthConfig

	// FallbackFor narrows which roles this entry backs up. Empty means
	// it stands in for every role.
	FallbackFor []Role
}

// link pairs a configured entry with its health monitor.
type link struct {
	ChainEntry
	health *healthMonitor
}

// coversRole reports whether a fallback link stands in for role.
func (l *link) coversRole(role Role) bool {
	if len(l.FallbackFor) == 0 {
		return true
	}
	return slices.Contains(l.FallbackFor, role)
}

// ChainOption customizes a Chain at construction time.
type ChainOption func(*Chain)

// WithLogger injects a structured logger. Without one, log output is
// discarded.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// Chain routes completion requests to the first usable provider for a
// role and walks down the lineup when attempts fail. It is not itself a
// Provider; it layers role selection, auth rotation, and health
// accounting on top of the providers it holds.
type Chain struct {
	links  []*link
	logger *slog.Logger

	// mu guards cancel.
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewChain builds a chain from the given entries, in order.
func NewChain(entries []ChainEntry, opts ...ChainOption) (*Chain, error) {
	if len(entries) == 0 {
		return nil, ErrNoProvider
	}
	c := &Chain{links: make([]*link, 0, len(entries))}
	for _, e := range entries {
		if e.Provider == nil {
			return nil, fmt.Errorf("%w: entry %q has nil provider", ErrNoProvider, e.Name)
		}
		c.links = append(c.links, &link{ChainEntry: e, health: newHealthMonitor(e.Health)})
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}

	for _, l := range c.links {
		c.logHealthTransitions(l)
	}
	return c, nil
}

// logHealthTransitions surfaces one link's phase changes through the
// chain logger.
func (c *Chain) logHealthTransitions(l *link) {
	l.health.onTransition = func(from, to healthPhase) {
		switch to {
		case phaseCooldown:
			c.logger.Warn("provider entered cooldown",
				"provider", l.Name,
				"backoff", l.health.backoff(),
				"failures", l.health.failureCount(),
			)
		case phaseDead:
			c.logger.Error("provider marked dead",
				"provider", l.Name,
				"total_failures", l.health.failureCount(),
			)
		case phaseHealthy:
			c.logger.Info("provider revived",
				"provider", l.Name,
				"previous_state", from.String(),
			)
		}
	}
}

// Start launches the background recovery probe loop. Calling Start on a
// started chain is a no-op.
func (c *Chain) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)

	go c.probeLoop(ctx, shortestProbeInterval(c.links))
}

// Stop halts the probe loop.
func (c *Chain) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// failover walks the lineup for role, skipping links whose health
// monitor vetoes them, and returns the first successful attempt.
// Non-retryable errors surface immediately; rate limits rotate the
// link's auth profile before the failure is charged.
func failover[T any](c *Chain, ctx context.Context, role Role, attempt func(*link) (T, error)) (T, error) {
	var zero T

	lineup := c.lineup(role)
	if len(lineup) == 0 {
		return zero, fmt.Errorf("%w for role %q", ErrNoProvider, role)
	}

	var lastErr error
	for _, l := range lineup {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if !l.health.available() {
			continue
		}

		v, err := attempt(l)
		if err == nil {
			return v, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		lastErr = err

		if IsRateLimit(err) && l.Auth != nil {
			l.Auth.Rotate()
			c.logger.Info("auth key rotated",
				"provider", l.Name,
				"key_index", l.Auth.CurrentIndex(),
			)
		}

		l.health.noteFailure()
		c.logger.Warn("provider failed, trying next", "provider", l.Name, "error", err)
	}

	if lastErr != nil {
		c.logger.Error("provider lineup exhausted", "role", role, "last_error", lastErr)
		return zero, fmt.Errorf("%w: last error: %w", ErrAllProviders, lastErr)
	}
	c.logger.Error("provider lineup exhausted", "role", role)
	return zero, fmt.Errorf("%w for role %q: no link available", ErrAllProviders, role)
}

// Complete asks the lineup for role to satisfy req, failing over until
// a provider answers.
func (c *Chain) Complete(ctx context.Context, role Role, req CompletionRequest) (CompletionResponse, error) {
	return failover(c, ctx, role, func(l *link) (CompletionResponse, error) {
		resp, err := l.Provider.Complete(ctx, req)
		if err == nil {
			l.health.noteSuccess()
		}
		return resp, err
	})
}

// Stream is Complete's streaming counterpart. The health verdict for
// the chosen link is deferred until its stream closes.
func (c *Chain) Stream(ctx context.Context, role Role, req CompletionRequest) (<-chan StreamChunk, error) {
	return failover(c, ctx, role, func(l *link) (<-chan StreamChunk, error) {
		ch, err := l.Provider.Stream(ctx, req)
		if err != nil {
			return nil, err
		}
		return c.superviseStream(ch, l), nil
	})
}

// superviseStream relays chunks while watching for retryable mid-stream
// errors. A clean run counts as a success for the link; a degraded one
// is charged as a failure the moment the error chunk appears.
func (c *Chain) superviseStream(src <-chan StreamChunk, l *link) <-chan StreamChunk {
	relay := make(chan StreamChunk, cap(src))
	go func() {
		defer close(relay)
		clean := true
		for chunk := range src {
			if chunk.Err != nil && IsRetryable(chunk.Err) {
				clean = false
				l.health.noteFailure()
				c.logger.Warn("stream degraded",
					"provider", l.Name,
					"error", chunk.Err,
				)
			}
			relay <- chunk
		}
		if clean {
			l.health.noteSuccess()
		}
	}()
	return relay
}

// lineup orders the links eligible for a role: direct matches first,
// then fallback links that cover it.
func (c *Chain) lineup(role Role) []*link {
	var direct, covering []*link
	for _, l := range c.links {
		switch {
		case l.Role == role:
			direct = append(direct, l)
		case l.Role == RoleFallback && l.coversRole(role):
			covering = append(covering, l)
		}
	}
	return append(direct, covering...)
}

// GetProvider returns the first link in the role's lineup that is
// currently available.
func (c *Chain) GetProvider(role Role) (Provider, error) {
	lineup := c.lineup(role)
	i := slices.IndexFunc(lineup, func(l *link) bool { return l.health.available() })
	if i < 0 {
		return nil, fmt.Errorf("%w for role %q", ErrNoProvider, role)
	}
	return lineup[i].Provider, nil
}

// Internal returns an available internal-role provider. Background work
// (summaries, titles) rides on it so the primary model's quota is left
// for user traffic.
func (c *Chain) Internal() (Provider, error) {
	return c.GetProvider(RoleInternal)
}

// Status is a point-in-time snapshot of one link, shaped for the admin
// surface.
type Status struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	Model     string `json:"model"`
	State     string `json:"state"`
	Available bool   `json:"available"`
	Failures  int    `json:"failures"`
}

// HealthReport snapshots every link in chain order.
func (c *Chain) HealthReport() []Status {
	out := make([]Status, len(c.links))
	for i, l := range c.links {
		out[i] = Status{
			Name:      l.Name,
			Role:      string(l.Role),
			Model:     l.Provider.ModelName(),
			State:     l.health.currentPhase().String(),
			Available: l.health.available(),
			Failures:  l.health.failureCount(),
		}
	}
	return out
}

// probeLoop periodically health-checks links that want a probe and
// revives the ones whose check passes. Each probe is bounded by the
// cadence so one hung provider cannot stall the loop past its tick.
func (c *Chain) probeLoop(ctx context.Context, every time.Duration) {
	tick := time.NewTicker(every)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			for _, l := range c.links {
				if !l.health.wantsProbe() {
					continue
				}
				hc, ok := l.Provider.(HealthChecker)
				if !ok {
					continue
				}
				probeCtx, cancel := context.WithTimeout(ctx, every)
				err := hc.HealthCheck(probeCtx)
				cancel()
				if err == nil {
					l.health.noteSuccess()
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// shortestProbeInterval picks the tightest configured probe cadence so
// no link waits longer than its own setting.
func shortestProbeInterval(links []*link) time.Duration {
	if len(links) == 0 {
		return HealthConfig{}.probeEvery()
	}
	every := links[0].Health.probeEvery()
	for _, l := range links[1:] {
		if d := l.Health.probeEvery(); d < every {
			every = d
		}
	}
	return every
}
