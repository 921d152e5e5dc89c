// Package mcp implements the tool.mcp module. It connects to configured
// MCP servers over stdio or streamable HTTP, lists their tools, and
// registers each one as a namespaced tool descriptor whose execution
// proxies the remote call.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/tool"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Interface guards.
var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module is the tool.mcp module.
type Module struct {
	config   Config
	logger   *slog.Logger
	appCtx   *core.AppContext
	registry *tool.Registry
	baseEnv  []string

	mu    sync.Mutex
	conns []*serverConn
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "tool.mcp",
		New: func() core.Module { return new(Module) },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("tool.mcp: decoding config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The tool registry must already be
// published as a service; without it the module has nowhere to surface
// tools.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.appCtx = ctx

	svc, ok := ctx.Service("tool.registry")
	if !ok {
		return errors.New("tool.mcp: tool registry service not available")
	}
	registry, ok := svc.(*tool.Registry)
	if !ok {
		return errors.New("tool.mcp: tool registry service has unexpected type")
	}
	m.registry = registry

	ctx.RegisterService("tool.mcp", m)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if len(m.config.Servers) == 0 {
		return errors.New("tool.mcp: at least one server is required")
	}

	seen := make(map[string]struct{}, len(m.config.Servers))
	for i := range m.config.Servers {
		srv := &m.config.Servers[i]
		if srv.Name == "" {
			return fmt.Errorf("tool.mcp: server %d: name is required", i)
		}
		if _, dup := seen[srv.Name]; dup {
			return fmt.Errorf("tool.mcp: duplicate server name %q", srv.Name)
		}
		seen[srv.Name] = struct{}{}

		if (srv.Command == "") == (srv.URL == "") {
			return fmt.Errorf("tool.mcp: server %q: exactly one of command or url must be set", srv.Name)
		}
		if _, err := srv.toolScopes(); err != nil {
			return fmt.Errorf("tool.mcp: server %q: %w", srv.Name, err)
		}
		if _, err := srv.accessLevel(); err != nil {
			return fmt.Errorf("tool.mcp: server %q: %w", srv.Name, err)
		}
	}

	return m.config.validateTimeouts()
}

// Start implements core.Starter. Each server is connected and its tools
// registered. An unreachable server logs an error and is skipped; a missing
// external integration must not take the assistant down with it.
func (m *Module) Start() error {
	// Child servers get the sanitized environment, never the raw one; stdio
	// servers must not inherit the host's API keys. Resolved here rather
	// than at Provision because the app publishes the environment only after
	// every module has registered its credentials.
	if svc, ok := m.appCtx.Service("security.sanitized_env"); ok {
		if env, ok := svc.([]string); ok {
			m.baseEnv = env
		}
	}
	if m.baseEnv == nil {
		m.baseEnv = security.SanitizedEnv(nil)
	}

	connectTimeout := m.config.parsedConnectTimeout()
	callTimeout := m.config.parsedCallTimeout()

	for _, srv := range m.config.Servers {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		conn, tools, err := connectServer(ctx, srv, m.baseEnv)
		cancel()
		if err != nil {
			m.logger.Error("mcp server connection failed", "server", srv.Name, "error", err)
			continue
		}

		// Both parsed successfully during Validate.
		scopes, _ := srv.toolScopes()
		access, _ := srv.accessLevel()

		registered := 0
		for _, mt := range tools {
			pt := newProxyTool(srv.Name, conn.client, mt, scopes, access, callTimeout)
			if err := m.registry.Register(pt); err != nil {
				m.logger.Warn("mcp tool registration failed",
					"server", srv.Name, "tool", mt.Name, "error", err)
				continue
			}
			registered++
		}

		m.mu.Lock()
		m.conns = append(m.conns, conn)
		m.mu.Unlock()

		m.logger.Info("mcp server connected", "server", srv.Name, "tools", registered)
	}

	return nil
}

// Stop implements core.Stopper. Connections close in parallel; closing a
// stdio client terminates its child process.
func (m *Module) Stop(ctx context.Context) error {
	m.mu.Lock()
	conns := m.conns
	m.conns = nil
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *serverConn) {
			defer wg.Done()
			if err := c.client.Close(); err != nil {
				m.logger.Warn("mcp server close failed", "server", c.name, "error", err)
			}
		}(conn)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
