package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// shutdownTimeout bounds how long Stop waits for modules to wind down.
const shutdownTimeout = 30 * time.Second

// App owns a set of modules and drives them through load, start, stop,
// and reload as one unit.
type App struct {
	ctx     *AppContext
	logger  *slog.Logger
	modules []loadedModule
}

type loadedModule struct {
	id      ModuleID
	mod     Module
	started bool
}

// NewApp wraps ctx in an empty App ready for LoadModules.
func NewApp(ctx *AppContext) *App {
	return &App{ctx: ctx, logger: ctx.Logger.With("component", "core")}
}

// LoadModules instantiates, provisions, and validates every module in
// ids, in order. On failure the already-loaded modules are torn down
// and the app is left empty.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		m, err := a.ctx.LoadModule(id)
		if err != nil {
			a.cleanup()
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		a.modules = append(a.modules, loadedModule{id: m.ModuleInfo().ID, mod: m})
		a.logger.Info("module loaded", "module", id)
	}
	return nil
}

// Module returns the loaded module with the given ID, if any.
func (a *App) Module(id string) (Module, bool) {
	for i := range a.modules {
		if string(a.modules[i].id) == id {
			return a.modules[i].mod, true
		}
	}
	return nil, false
}

// AppendModule adds an already-constructed module to the app lifecycle under
// the given ID. It skips Configure/Provision/Validate; the caller wires the
// module itself. Used for components assembled between LoadModules and Start,
// such as the router.
func (a *App) AppendModule(id string, mod Module) {
	a.modules = append(a.modules, loadedModule{id: ModuleID(id), mod: mod})
	a.logger.Info("module appended", "module", id)
}

// Start starts every module that implements Starter, in load order.
// The first failure stops whatever already started, in reverse.
func (a *App) Start() error {
	for i := range a.modules {
		if err := a.startOne(&a.modules[i]); err != nil {
			a.stopModules(i - 1)
			return err
		}
	}
	a.logger.Info("modules started", "count", len(a.modules))
	return nil
}

func (a *App) startOne(mi *loadedModule) error {
	s, ok := mi.mod.(Starter)
	if !ok {
		return nil
	}
	a.logger.Info("starting module", "module", string(mi.id))
	if err := s.Start(); err != nil {
		a.logger.Error("module start failed", "module", string(mi.id), "error", err)
		return fmt.Errorf("starting module %s: %w", mi.id, err)
	}
	mi.started = true
	return nil
}

// Stop unwinds every started module in reverse order, bounded by the
// shutdown timeout.
func (a *App) Stop() {
	a.stopModules(len(a.modules) - 1)
}

func (a *App) stopModules(from int) {
	ctx, cancel := shutdownContext()
	defer cancel()

	for i := from; i >= 0; i-- {
		a.stopOne(ctx, &a.modules[i], true)
	}
}

// cleanup tears everything down after a load failure. Provisioned
// modules may hold resources even though Start never ran, so the
// started flag is ignored.
func (a *App) cleanup() {
	ctx, cancel := shutdownContext()
	defer cancel()

	for i := len(a.modules) - 1; i >= 0; i-- {
		a.stopOne(ctx, &a.modules[i], false)
	}
	a.modules = nil
}

func (a *App) stopOne(ctx context.Context, mi *loadedModule, startedOnly bool) {
	if startedOnly && !mi.started {
		return
	}
	if s, ok := mi.mod.(Stopper); ok {
		a.logger.Info("stopping module", "module", string(mi.id))
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("module stop error", "module", string(mi.id), "error", err)
		}
	}
	mi.started = false
}

func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), shutdownTimeout)
}

// ReloadModules delivers Reload to every module that implements
// Reloader and joins the failures, so one bad module does not keep the
// rest from picking up the new config.
func (a *App) ReloadModules(ctx *AppContext) error {
	var errs []error
	for _, mi := range a.modules {
		r, ok := mi.mod.(Reloader)
		if !ok {
			continue
		}
		a.logger.Info("reloading module", "module", string(mi.id))
		if err := r.Reload(ctx.ForModule(mi.id)); err != nil {
			a.logger.Error("module reload failed", "module", string(mi.id), "error", err)
			errs = append(errs, fmt.Errorf("reloading %s: %w", mi.id, err))
		}
	}
	return errors.Join(errs...)
}
