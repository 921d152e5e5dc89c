package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/core"
)

// Handler swaps a fresh configuration into a running App.
type Handler struct {
	app    *core.App
	appCtx *core.AppContext
	logger *slog.Logger
}

// NewHandler creates a reload handler. appCtx must be the application's base
// context so reloaded modules keep seeing the services registered at startup.
func NewHandler(app *core.App, appCtx *core.AppContext) *Handler {
	return &Handler{
		app:    app,
		appCtx: appCtx,
		logger: appCtx.Logger,
	}
}

// HandleReload reads configPath, validates the result, and hands the
// new config to every module implementing core.Reloader.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return h.apply(ctx, cfg)
}

// HandleReloadFromConfig applies an already-validated config. Running
// config.Validate first is the caller's job; none happens here.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	return h.apply(ctx, cfg)
}

func (h *Handler) apply(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reload cancelled: %w", err)
	}
	scoped := h.appCtx.WithModuleConfigs(cfg.Modules)
	if err := h.app.ReloadModules(scoped); err != nil {
		return fmt.Errorf("reload modules: %w", err)
	}
	h.logger.Info("configuration reloaded")
	return nil
}
