package tool

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// AccessLevel defines how a tool invocation is handled.
type AccessLevel string

const (
	// AccessAllow permits tool execution.
	AccessAllow AccessLevel = "allow"

	// AccessDeny blocks tool execution entirely.
	AccessDeny AccessLevel = "deny"
)

func (l AccessLevel) valid() bool {
	return l == AccessAllow || l == AccessDeny
}

// PolicyContext classifies the conversation a tool call came from.
type PolicyContext string

const (
	// PolicyContextDM covers one-on-one conversations.
	PolicyContextDM PolicyContext = "dm"

	// PolicyContextGroup covers group chats, where policies are
	// typically stricter.
	PolicyContextGroup PolicyContext = "group"
)

type policyCtxKey struct{}

// WithPolicyContext returns a context carrying the policy context of the
// conversation that triggered the current generation. Executors prefer it
// over their configured default, so one executor can serve both DM and
// group traffic.
func WithPolicyContext(ctx context.Context, pctx PolicyContext) context.Context {
	return context.WithValue(ctx, policyCtxKey{}, pctx)
}

// PolicyContextFrom extracts the policy context set by WithPolicyContext.
func PolicyContextFrom(ctx context.Context) (PolicyContext, bool) {
	pctx, ok := ctx.Value(policyCtxKey{}).(PolicyContext)
	return pctx, ok
}

// Policy defines the access settings for a context.
type Policy struct {
	// Default is the fallback access level for tools not explicitly listed.
	Default AccessLevel

	// Tools maps tool names to explicit access levels.
	Tools map[string]AccessLevel

	// Allow lists tools that may execute.
	Allow []string

	// Deny lists tools that are always refused.
	Deny []string
}

// PolicyConfig pairs a policy with each conversation class.
type PolicyConfig struct {
	// DM governs one-on-one traffic; Group governs group chats.
	DM    Policy
	Group Policy
}

// contextPolicy selects the policy for ctx. ok is false for contexts the
// config does not know, in which case the tool's own default applies.
func contextPolicy(cfg PolicyConfig, ctx PolicyContext) (Policy, bool) {
	switch ctx {
	case PolicyContextDM:
		return cfg.DM, true
	case PolicyContextGroup:
		return cfg.Group, true
	default:
		return Policy{}, false
	}
}

// ResolveAccess determines the effective access level for a tool.
// Resolution order: explicit tool mapping > context default > tool's DefaultAccess.
func ResolveAccess(cfg PolicyConfig, ctx PolicyContext, t Tool) AccessLevel {
	policy, ok := contextPolicy(cfg, ctx)
	if !ok {
		return t.DefaultAccess()
	}

	name := strings.TrimSpace(t.Name())
	if level, ok := policy.explicitLevel(name); ok {
		return level
	}
	if policy.Default != "" {
		return policy.Default
	}
	return t.DefaultAccess()
}

// explicitLevel reports the level assigned to name by the tool mapping or
// the allow and deny lists. Mapping keys and list entries are compared
// after trimming so YAML padding does not defeat a rule.
func (p Policy) explicitLevel(name string) (AccessLevel, bool) {
	for key, level := range p.Tools {
		if strings.TrimSpace(key) == name {
			return level, true
		}
	}
	if listed(p.Allow, name) {
		return AccessAllow, true
	}
	if listed(p.Deny, name) {
		return AccessDeny, true
	}
	return "", false
}

func listed(names []string, name string) bool {
	return slices.ContainsFunc(names, func(entry string) bool {
		return strings.TrimSpace(entry) == name
	})
}

// ValidatePolicyConfig checks that no tool appears with conflicting
// assignments within the same context (e.g., listed in both allow and deny).
func ValidatePolicyConfig(cfg PolicyConfig) error {
	if err := cfg.DM.validate("dm"); err != nil {
		return err
	}
	return cfg.Group.validate("group")
}

func (p Policy) validate(label string) error {
	if p.Default != "" && !p.Default.valid() {
		return fmt.Errorf("policy %s: invalid default level %q", label, p.Default)
	}

	assigned := make(map[string]AccessLevel, len(p.Tools))
	for key, level := range p.Tools {
		name := strings.TrimSpace(key)
		if name == "" {
			return fmt.Errorf("policy %s: tool mapping has empty name", label)
		}
		if !level.valid() {
			return fmt.Errorf("policy %s: tool %q has invalid level %q", label, name, level)
		}
		assigned[name] = level
	}

	if err := checkList(p.Allow, AccessAllow, "allow", assigned, label); err != nil {
		return err
	}
	return checkList(p.Deny, AccessDeny, "deny", assigned, label)
}

// checkList folds a list's entries into assigned, rejecting a name already
// carrying a different level. Repeating a name at the same level is fine.
func checkList(entries []string, level AccessLevel, listName string, assigned map[string]AccessLevel, label string) error {
	for _, raw := range entries {
		name := strings.TrimSpace(raw)
		if name == "" {
			return fmt.Errorf("policy %s: %s list contains empty tool name", label, listName)
		}
		if prior, ok := assigned[name]; ok && prior != level {
			return fmt.Errorf("%w: policy %s: tool %q appears in both %q and %q", ErrToolInMultipleLists, label, name, prior, level)
		}
		assigned[name] = level
	}
	return nil
}
