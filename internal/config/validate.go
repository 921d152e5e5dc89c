package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/tool"
)

// Validate checks the structural validity of a Config: the version
// field, the module table against the registry, and every optional
// section that is present.
func Validate(cfg *Config) error {
	errs := validateBase(cfg)
	errs = append(errs, validateProviders(cfg)...)
	errs = append(errs, validateAgent(cfg.Agent)...)
	errs = append(errs, validateSecurity(cfg.Security)...)
	errs = append(errs, validateObservability(cfg.Observability)...)
	return errors.Join(errs...)
}

func validateBase(cfg *Config) []error {
	var errs []error
	switch {
	case cfg.Version == "":
		errs = append(errs, errors.New("config: version field is required"))
	case cfg.Version != "1":
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}
	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}
	for id := range cfg.Modules {
		if _, known := core.GetModule(id); !known {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}
	// Modules implementing core.Configurable must have an entry.
	for _, info := range core.GetModules() {
		if _, ok := info.New().(core.Configurable); !ok {
			continue
		}
		if _, exists := cfg.Modules[string(info.ID)]; !exists {
			errs = append(errs, fmt.Errorf("config: module %q requires configuration but has no entry", info.ID))
		}
	}
	return errs
}

func validateProviders(cfg *Config) []error {
	if cfg.Providers == nil {
		return nil
	}
	var errs []error

	if len(cfg.Providers.Chain) == 0 {
		errs = append(errs, errors.New("config: providers.chain must not be empty"))
	}
	for i, entry := range cfg.Providers.Chain {
		if entry.Module == "" {
			errs = append(errs, fmt.Errorf("config: providers.chain[%d]: module is required", i))
			continue
		}
		if !strings.HasPrefix(entry.Module, "provider.") {
			errs = append(errs, fmt.Errorf("config: providers.chain[%d]: %q is not a provider module", i, entry.Module))
		} else if _, ok := cfg.Modules[entry.Module]; !ok {
			errs = append(errs, fmt.Errorf("config: providers.chain[%d]: module %q is not configured", i, entry.Module))
		}
		if len(entry.FallbackFor) > 0 && entry.Role != "fallback" {
			errs = append(errs, fmt.Errorf("config: providers.chain[%d]: fallback_for requires role \"fallback\"", i))
		}
		for _, role := range entry.FallbackFor {
			if role != "primary" && role != "internal" {
				errs = append(errs, fmt.Errorf("config: providers.chain[%d]: invalid fallback_for role %q", i, role))
			}
		}
		for j, key := range entry.AuthKeys {
			if key == "" {
				errs = append(errs, fmt.Errorf("config: providers.chain[%d]: auth_keys[%d] is empty", i, j))
			}
		}
		switch entry.Role {
		case "", "primary", "internal", "fallback":
		default:
			errs = append(errs, fmt.Errorf("config: providers.chain[%d]: invalid role %q", i, entry.Role))
		}
	}

	return errs
}

func validateAgent(agent *AgentConfig) []error {
	if agent == nil {
		return nil
	}
	var errs []error

	switch agent.GroupPolicy {
	case "", "require_mention", "allow_all":
	default:
		errs = append(errs, fmt.Errorf("config: agent.group_policy %q is not \"require_mention\" or \"allow_all\"", agent.GroupPolicy))
	}

	counts := []struct {
		name  string
		value int
	}{
		{"workers", agent.Workers},
		{"history_limit", agent.HistoryLimit},
		{"max_iterations", agent.MaxIterations},
		{"token_budget", agent.TokenBudget},
		{"max_turns", agent.MaxTurns},
		{"max_context_tokens", agent.MaxContextTokens},
		{"usage_retention_days", agent.UsageRetentionDays},
	}
	for _, c := range counts {
		if c.value < 0 {
			errs = append(errs, fmt.Errorf("config: agent.%s must not be negative", c.name))
		}
	}

	durations := []struct {
		name  string
		value string
	}{
		{"await_timeout", agent.AwaitTimeout},
		{"generation_timeout", agent.GenerationTimeout},
		{"session_max_idle", agent.SessionMaxIdle},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		dur, err := time.ParseDuration(d.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: agent.%s: invalid duration %q", d.name, d.value))
		} else if dur <= 0 {
			errs = append(errs, fmt.Errorf("config: agent.%s must be positive", d.name))
		}
	}

	for role, scopes := range agent.Grants {
		if role == "" {
			errs = append(errs, errors.New("config: agent.grants has an empty role name"))
		}
		for _, s := range scopes {
			if !validScope(s) {
				errs = append(errs, fmt.Errorf("config: agent.grants[%q]: unknown scope %q", role, s))
			}
		}
	}

	if agent.Tools != nil {
		if err := tool.ValidatePolicyConfig(agent.Tools.PolicyConfig()); err != nil {
			errs = append(errs, fmt.Errorf("config: agent.tools: %w", err))
		}
	}
	return errs
}

func validScope(s string) bool {
	switch tool.Scope(s) {
	case tool.ScopeReadOnly, tool.ScopeReadWrite, tool.ScopeExec, tool.ScopeNetwork, tool.ScopeAdmin:
		return true
	}
	return false
}

func validateSecurity(sec *SecurityConfig) []error {
	if sec == nil {
		return nil
	}
	var errs []error

	rl := sec.RateLimits
	if rl.MaxSessions < 0 {
		errs = append(errs, errors.New("config: security.rate_limits.max_sessions must not be negative"))
	}
	if rl.MessagesPerMin < 0 {
		errs = append(errs, errors.New("config: security.rate_limits.messages_per_min must not be negative"))
	}
	if rl.ToolCallsPerMin < 0 {
		errs = append(errs, errors.New("config: security.rate_limits.tool_calls_per_min must not be negative"))
	}
	if rl.AuthPerMin < 0 {
		errs = append(errs, errors.New("config: security.rate_limits.auth_per_min must not be negative"))
	}
	if rl.TokensPerHour < 0 {
		errs = append(errs, errors.New("config: security.rate_limits.tokens_per_hour must not be negative"))
	}

	for i, d := range sec.URLFilter.AllowDomains {
		if d == "" {
			errs = append(errs, fmt.Errorf("config: security.url_filter.allow_domains[%d] is empty", i))
		}
	}
	for i, d := range sec.URLFilter.DenyDomains {
		if d == "" {
			errs = append(errs, fmt.Errorf("config: security.url_filter.deny_domains[%d] is empty", i))
		}
	}

	return errs
}

func validateObservability(obs *ObservabilityConfig) []error {
	if obs == nil {
		return nil
	}
	var errs []error
	if obs.SampleRatio < 0 || obs.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("config: observability.sample_ratio must be within [0, 1], got %v", obs.SampleRatio))
	}
	return errs
}
