package mcp

import (
	"fmt"
	"time"

	"github.com/parleyhq/parley/internal/tool"
)

const (
	defaultConnectTimeout = "30s"
	defaultCallTimeout    = "60s"
)

// Config holds the tool.mcp module configuration.
type Config struct {
	// Servers lists the MCP servers to connect to.
	Servers []ServerConfig `yaml:"servers"`

	// ConnectTimeout bounds connection, handshake, and tool listing per
	// server. Defaults to 30s.
	ConnectTimeout string `yaml:"connect_timeout"`

	// CallTimeout bounds a single tool invocation. Defaults to 60s.
	CallTimeout string `yaml:"call_timeout"`
}

// ServerConfig describes one MCP server. Exactly one of Command (stdio
// subprocess) or URL (streamable HTTP) must be set.
type ServerConfig struct {
	// Name namespaces the server's tools as "<name>.<tool>". Must be
	// unique across servers.
	Name string `yaml:"name"`

	// Command starts a stdio server as a child process.
	Command string `yaml:"command"`

	// Args are passed to Command.
	Args []string `yaml:"args"`

	// Env adds variables to the child's sanitized environment.
	Env map[string]string `yaml:"env"`

	// URL points at a streamable HTTP server.
	URL string `yaml:"url"`

	// Headers are sent with every HTTP request (e.g. bearer tokens).
	Headers map[string]string `yaml:"headers"`

	// Scopes tags every tool from this server for capability filtering.
	// Defaults to ["network"].
	Scopes []string `yaml:"scopes"`

	// DefaultAccess applies when no policy names a tool: "allow" or
	// "deny". Defaults to allow; configuring a server is the operator's
	// grant.
	DefaultAccess string `yaml:"default_access"`
}

// defaults fills in zero values.
func (c *Config) defaults() {
	if c.ConnectTimeout == "" {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.CallTimeout == "" {
		c.CallTimeout = defaultCallTimeout
	}
}

// parsedConnectTimeout returns the connect timeout as a time.Duration.
// Assumes the value has been validated.
func (c *Config) parsedConnectTimeout() time.Duration {
	d, err := time.ParseDuration(c.ConnectTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// parsedCallTimeout returns the call timeout as a time.Duration.
// Assumes the value has been validated.
func (c *Config) parsedCallTimeout() time.Duration {
	d, err := time.ParseDuration(c.CallTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// validateTimeouts checks both timeout strings parse to positive durations.
func (c *Config) validateTimeouts() error {
	for _, t := range []struct{ field, value string }{
		{"connect_timeout", c.ConnectTimeout},
		{"call_timeout", c.CallTimeout},
	} {
		d, err := time.ParseDuration(t.value)
		if err != nil {
			return fmt.Errorf("tool.mcp: invalid %s %q: %w", t.field, t.value, err)
		}
		if d <= 0 {
			return fmt.Errorf("tool.mcp: %s must be positive, got %q", t.field, t.value)
		}
	}
	return nil
}

// scopeNames maps configured scope strings to tool scopes.
var scopeNames = map[string]tool.Scope{
	"read_only":  tool.ScopeReadOnly,
	"read_write": tool.ScopeReadWrite,
	"exec":       tool.ScopeExec,
	"network":    tool.ScopeNetwork,
	"admin":      tool.ScopeAdmin,
}

// toolScopes maps the configured scope strings, defaulting to network.
func (s *ServerConfig) toolScopes() ([]tool.Scope, error) {
	if len(s.Scopes) == 0 {
		return []tool.Scope{tool.ScopeNetwork}, nil
	}
	scopes := make([]tool.Scope, 0, len(s.Scopes))
	for _, raw := range s.Scopes {
		sc, ok := scopeNames[raw]
		if !ok {
			return nil, fmt.Errorf("unknown scope %q", raw)
		}
		scopes = append(scopes, sc)
	}
	return scopes, nil
}

// accessLevel maps the configured default access.
func (s *ServerConfig) accessLevel() (tool.AccessLevel, error) {
	switch s.DefaultAccess {
	case "", "allow":
		return tool.AccessAllow, nil
	case "deny":
		return tool.AccessDeny, nil
	default:
		return "", fmt.Errorf("invalid default_access %q (must be \"allow\" or \"deny\")", s.DefaultAccess)
	}
}
