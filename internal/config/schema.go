// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for parley.
package config

import (
	"gopkg.in/yaml.v3"

	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/tool"
)

// Config is the root document of a parley config file.
type Config struct {
	// Version pins the config format. Only "1" is accepted.
	Version string `yaml:"version"`

	// Modules carries each module's raw YAML section keyed by module ID.
	// Keys must match registered module IDs (e.g. "channel.discord").
	Modules map[string]yaml.Node `yaml:"modules"`

	// Providers arranges loaded provider modules into the failover chain.
	// Absent, every loaded provider module joins the chain in sorted ID
	// order with the first entry as primary.
	Providers *ProvidersConfig `yaml:"providers,omitempty"`

	// Agent tunes the message router and the generation loop.
	Agent *AgentConfig `yaml:"agent,omitempty"`

	// Security holds optional process-wide security settings.
	Security *SecurityConfig `yaml:"security,omitempty"`

	// Observability enables OTLP trace export. Metrics are always
	// collected regardless.
	Observability *ObservabilityConfig `yaml:"observability,omitempty"`
}

// ProvidersConfig describes the provider failover chain.
type ProvidersConfig struct {
	// Chain lists the chain positions in failover order.
	Chain []ChainEntryConfig `yaml:"chain"`
}

// ChainEntryConfig is one position in the provider chain.
type ChainEntryConfig struct {
	// Module is a loaded provider module ID, e.g. "provider.anthropic".
	Module string `yaml:"module"`

	// Role selects which requests the entry serves: "primary",
	// "internal", or "fallback". Empty means primary.
	Role string `yaml:"role,omitempty"`

	// FallbackFor narrows a fallback entry to specific roles.
	// Empty means the entry backs every role.
	FallbackFor []string `yaml:"fallback_for,omitempty"`

	// AuthKeys supplies rotation keys for the entry. With more than one
	// key, a rate-limited request rotates to the next key before the
	// chain fails over to the next provider.
	AuthKeys []string `yaml:"auth_keys,omitempty"`
}

// AgentConfig tunes the router, context builder, and generation loop.
// Zero values defer to each component's own defaults.
type AgentConfig struct {
	// Workers is the number of concurrent generation workers.
	Workers int `yaml:"workers,omitempty"`

	// GroupPolicy is "require_mention" or "allow_all".
	GroupPolicy string `yaml:"group_policy,omitempty"`

	// GroupAllowlist and GroupDenylist hold sender IDs checked for
	// group messages. The denylist wins over the allowlist.
	GroupAllowlist []string `yaml:"group_allowlist,omitempty"`
	GroupDenylist  []string `yaml:"group_denylist,omitempty"`

	// HistoryLimit caps how many platform messages are fetched per turn.
	HistoryLimit int `yaml:"history_limit,omitempty"`

	// AwaitTimeout bounds how long a cancelled generation may linger
	// before its successor proceeds anyway. Duration string.
	AwaitTimeout string `yaml:"await_timeout,omitempty"`

	// MaxIterations caps reason-act cycles per generation.
	MaxIterations int `yaml:"max_iterations,omitempty"`

	// TokenBudget caps cumulative tokens per generation. Zero is
	// unlimited.
	TokenBudget int `yaml:"token_budget,omitempty"`

	// GenerationTimeout bounds one generation's wall-clock time.
	// Duration string.
	GenerationTimeout string `yaml:"generation_timeout,omitempty"`

	// MaxTurns is the history length above which summarization kicks in.
	MaxTurns int `yaml:"max_turns,omitempty"`

	// MaxContextTokens caps the assembled model input. Zero disables
	// the token gate.
	MaxContextTokens int `yaml:"max_context_tokens,omitempty"`

	// SessionMaxIdle is how long an idle session survives before the
	// cleanup job prunes it. Duration string.
	SessionMaxIdle string `yaml:"session_max_idle,omitempty"`

	// UsageRetentionDays is how many days of usage rows the nightly
	// rollup keeps. Zero keeps everything.
	UsageRetentionDays int `yaml:"usage_retention_days,omitempty"`

	// Grants maps platform role names to tool scopes. Nil grants every
	// role all non-admin scopes.
	Grants map[string][]string `yaml:"grants,omitempty"`

	// Tools carries per-context tool access policies.
	Tools *ToolsConfig `yaml:"tools,omitempty"`
}

// ToolsConfig holds the tool access policy for each conversation context.
type ToolsConfig struct {
	DM    ToolPolicyConfig `yaml:"dm"`
	Group ToolPolicyConfig `yaml:"group"`
}

// ToolPolicyConfig is the YAML shape of one tool access policy.
type ToolPolicyConfig struct {
	// Default is the fallback level, "allow" or "deny".
	Default string `yaml:"default,omitempty"`

	// Tools maps tool names to explicit levels.
	Tools map[string]string `yaml:"tools,omitempty"`

	// Allow and Deny list tool names; deny wins on conflict with an
	// explicit mapping, and conflicts within one context are rejected.
	Allow []string `yaml:"allow,omitempty"`
	Deny  []string `yaml:"deny,omitempty"`
}

// PolicyConfig converts the YAML shape into the tool package's policy type.
func (t *ToolsConfig) PolicyConfig() tool.PolicyConfig {
	if t == nil {
		return tool.PolicyConfig{}
	}
	return tool.PolicyConfig{
		DM:    t.DM.policy(),
		Group: t.Group.policy(),
	}
}

func (p ToolPolicyConfig) policy() tool.Policy {
	out := tool.Policy{
		Default: tool.AccessLevel(p.Default),
		Allow:   p.Allow,
		Deny:    p.Deny,
	}
	if len(p.Tools) > 0 {
		out.Tools = make(map[string]tool.AccessLevel, len(p.Tools))
		for name, level := range p.Tools {
			out.Tools[name] = tool.AccessLevel(level)
		}
	}
	return out
}

// ToolGrants converts role grants into the tool package's grant type.
// Nil in, nil out: absent grants mean every role sees non-admin tools.
func (a *AgentConfig) ToolGrants() tool.Grants {
	if a == nil || a.Grants == nil {
		return nil
	}
	grants := make(tool.Grants, len(a.Grants))
	for role, scopes := range a.Grants {
		converted := make([]tool.Scope, 0, len(scopes))
		for _, s := range scopes {
			converted = append(converted, tool.Scope(s))
		}
		grants[role] = converted
	}
	return grants
}

// ObservabilityConfig configures OTLP trace export.
type ObservabilityConfig struct {
	// OTLPEndpoint is the collector address, e.g. "localhost:4318".
	// Empty disables tracing.
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`

	// SampleRatio is the trace sampling fraction in [0, 1]. Zero means
	// sample everything.
	SampleRatio float64 `yaml:"sample_ratio,omitempty"`

	// Environment tags exported spans (e.g. "production").
	Environment string `yaml:"environment,omitempty"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure,omitempty"`
}

// SecurityConfig groups settings for the security collaborators wired by the
// app: rate limiting, URL filtering, and audit logging.
type SecurityConfig struct {
	// RateLimits bounds session count and message/tool/token throughput.
	RateLimits security.RateLimitConfig `yaml:"rate_limits"`

	// URLFilter restricts which domains attachment downloads (voice
	// notes) may reach. Unset means no filtering.
	URLFilter security.URLFilterConfig `yaml:"url_filter"`

	// AuditLog is the path of the JSONL audit log file. Empty disables
	// file output; events still reach the structured log.
	AuditLog string `yaml:"audit_log,omitempty"`
}
