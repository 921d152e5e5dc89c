// Package core provides the module system foundation for parley.
package core

import (
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

// AppContext carries the resources modules share: directories, a scoped
// logger, raw module configs, and the cross-module service registry.
type AppContext struct {
	// Logger is scoped to the receiving module.
	Logger *slog.Logger

	// DataDir roots persistent state that outlives sessions.
	DataDir string

	// Workspace roots the files the active session may touch.
	Workspace string

	parentLogger  *slog.Logger
	moduleConfigs map[string]yaml.Node
	services      *serviceRegistry
}

// serviceRegistry is shared by all scoped copies of an AppContext, so a
// service registered by one module is visible to every other.
type serviceRegistry struct {
	mu sync.RWMutex
	m  map[string]any
}

// NewAppContext builds the root context. A nil logger falls back to
// slog.Default.
func NewAppContext(base *slog.Logger, dataDir, workspace string) *AppContext {
	if base == nil {
		base = slog.Default()
	}
	return &AppContext{
		Logger:       base,
		DataDir:      dataDir,
		Workspace:    workspace,
		parentLogger: base,
		services:     &serviceRegistry{m: make(map[string]any)},
	}
}

// RegisterService publishes a runtime value under a well-known name so other
// modules can discover it without an import edge. Names are conventionally
// "namespace.thing" ("router.sessions", "provider.chain"). Registering the
// same name twice replaces the earlier value.
func (ctx *AppContext) RegisterService(name string, svc any) {
	if ctx.services == nil {
		ctx.services = &serviceRegistry{m: make(map[string]any)}
	}
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.m[name] = svc
}

// Service looks up a value registered with RegisterService. Callers type-assert
// the result and should treat a missing or wrongly-typed service as an absent
// optional dependency.
func (ctx *AppContext) Service(name string) (any, bool) {
	if ctx.services == nil {
		return nil, false
	}
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.m[name]
	return svc, ok
}

// WithModuleConfigs attaches the per-module raw YAML sections, keyed by
// module ID, to a copy of the context.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	out := *ctx
	out.moduleConfigs = configs
	return &out
}

// ForModule scopes the context to one module: shared services and
// directories stay, the logger gets tagged with the module ID. Scoping
// always derives from the root logger, so tags do not stack.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.parentLogger.With("module", string(id))
	return &cp
}

// LoadModule instantiates a module by ID and walks it through its
// lifecycle, feature-detecting each optional phase:
//
//	New() → Configure() → Provision() → Validate()
//
// The returned module is ready for Start.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("unknown module %q", id)
	}
	mod := info.New()

	if err := ctx.configure(mod, id); err != nil {
		return nil, fmt.Errorf("configure module %s: %w", id, err)
	}
	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(info.ID)); err != nil {
			return nil, fmt.Errorf("provision module %s: %w", id, err)
		}
	}
	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validate module %s: %w", id, err)
		}
	}
	return mod, nil
}

// configure hands the module its config section, when it wants one and
// one exists.
func (ctx *AppContext) configure(mod Module, id string) error {
	c, ok := mod.(Configurable)
	if !ok {
		return nil
	}
	node, exists := ctx.moduleConfigs[id]
	if !exists {
		return nil
	}
	return c.Configure(&node)
}
