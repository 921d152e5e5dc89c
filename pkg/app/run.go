// Package app wires configuration, security collaborators, modules, and the
// router into a running parley process, and owns its shutdown and reload
// loop.
package app

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/observability"
	"github.com/parleyhq/parley/internal/reload"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/tool"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath points at the YAML configuration. Empty means search
	// the standard locations via ResolveConfigPath.
	ConfigPath string

	// Version, Commit, and Date are stamped at build time via ldflags.
	Version, Commit, Date string

	// DataDir overrides where persistent state lives.
	DataDir string

	// Workspace overrides the agent working directory.
	Workspace string

	// LogLevel is the minimum level emitted. The zero value is Info.
	LogLevel slog.Level
}

// Run loads configuration, assembles the security and observability stack,
// starts every module, and blocks until a shutdown signal arrives. SIGHUP
// and config file changes trigger a live reload for modules implementing
// core.Reloader.
func Run(params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		p, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = p
	}

	cfg, err := loadValidated(cfgPath)
	if err != nil {
		return err
	}

	// Security foundation first: every log line from here on passes
	// through the redactor.
	credStore := security.NewCredentialStore()
	redactor := security.NewRedactor()
	text := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: params.LogLevel})
	logger := slog.New(security.NewRedactingHandler(text, redactor))

	logger.Info("starting parley",
		"version", params.Version,
		"commit", params.Commit,
		"built", params.Date,
		"config", cfgPath,
	)

	// Audit sink. The same file backs the security audit logger and the
	// after-send hook; both serialize their writes.
	var auditFile *os.File
	if cfg.Security != nil && cfg.Security.AuditLog != "" {
		f, err := os.OpenFile(cfg.Security.AuditLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer f.Close()
		auditFile = f
	}
	auditCfg := security.AuditLoggerConfig{Redactor: redactor}
	if auditFile != nil {
		auditCfg.Writer = auditFile
	}
	auditLogger := security.NewAuditLogger(auditCfg)

	var rlCfg security.RateLimitConfig
	if cfg.Security != nil {
		rlCfg = cfg.Security.RateLimits
	}
	rateLimiter := security.NewRateLimiter(rlCfg)

	dataDir := cmp.Or(params.DataDir, DefaultDataDir())
	workspace := cmp.Or(params.Workspace, DefaultWorkspace())

	// Observability: a private registry keeps the metrics endpoint free of
	// whatever other libraries register globally.
	promReg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promReg)

	var tracer *observability.Tracer
	if cfg.Observability != nil && cfg.Observability.OTLPEndpoint != "" {
		tr, shutdown, err := observability.NewTracer(observability.TraceConfig{
			ServiceName:    "parley",
			ServiceVersion: params.Version,
			Environment:    cfg.Observability.Environment,
			Endpoint:       cfg.Observability.OTLPEndpoint,
			SampleRatio:    cfg.Observability.SampleRatio,
			Insecure:       cfg.Observability.Insecure,
		})
		if err != nil {
			return fmt.Errorf("initializing tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn("trace exporter shutdown", "error", err)
			}
		}()
		tracer = tr
	}

	appCtx := core.NewAppContext(logger, dataDir, workspace).WithModuleConfigs(cfg.Modules)

	// The shared tool registry must exist before LoadModules: tool modules
	// resolve it at Provision to register what they serve.
	registry := tool.NewRegistry()
	registry.SetAuditLogger(auditLogger)
	registry.SetRateLimiter(rateLimiter)

	appCtx.RegisterService("security.credentials", credStore)
	appCtx.RegisterService("security.redactor", redactor)
	appCtx.RegisterService("security.audit", auditLogger)
	appCtx.RegisterService("security.rate_limiter", rateLimiter)
	appCtx.RegisterService("tool.registry", registry)
	appCtx.RegisterService("config.path", cfgPath)
	appCtx.RegisterService("observability.metrics", metrics)
	appCtx.RegisterService("observability.registry", promReg)

	if cfg.Security != nil && (len(cfg.Security.URLFilter.AllowDomains) > 0 || len(cfg.Security.URLFilter.DenyDomains) > 0) {
		appCtx.RegisterService("security.urlfilter", security.NewURLFilter(cfg.Security.URLFilter))
	}

	application := core.NewApp(appCtx)
	moduleIDs := config.Resolve(cfg)
	if err := application.LoadModules(moduleIDs); err != nil {
		return err
	}

	// Wire the router between LoadModules and Start: discover channels and
	// providers, build the chain and the generation stack, call SetInbox on
	// every channel, and append router, chain, and cron to the lifecycle.
	wcfg := wireConfig{
		cfg:         cfg,
		ids:         moduleIDs,
		logger:      logger,
		credentials: credStore,
		audit:       auditLogger,
		rateLimiter: rateLimiter,
		registry:    registry,
		metrics:     metrics,
		tracer:      tracer,
	}
	if auditFile != nil {
		wcfg.auditSink = auditFile
	}
	if err := wireRouter(application, appCtx, wcfg); err != nil {
		return err
	}

	// Modules and the chain have pushed their credentials by now; sync the
	// redactor and publish the scrubbed environment before any module
	// starts a child process.
	redactor.SyncCredentials(credStore)
	appCtx.RegisterService("security.sanitized_env", security.SanitizedEnv(credStore))

	// The reloader is published before Start so the gateway's reload
	// endpoint can resolve it.
	handler := reload.NewHandler(application, appCtx)
	appCtx.RegisterService("config.reloader", func() error {
		return handler.HandleReload(context.Background(), cfgPath)
	})

	if err := application.Start(); err != nil {
		return fmt.Errorf("starting modules: %w", err)
	}

	// Shutdown and reload loop. SIGHUP and watcher events share one
	// reload path; anything else tears the process down.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	watcher := reload.NewWatcher(reload.WatcherConfig{ConfigPath: cfgPath})
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	watcher.Start(watchCtx)
	defer watcher.Stop()

	reloadNow := func(trigger string) {
		logger.Info("reloading configuration", "trigger", trigger, "config", cfgPath)
		if err := handler.HandleReload(watchCtx, cfgPath); err != nil {
			logger.Error("reload failed", "error", err)
		}
	}

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reloadNow("SIGHUP")
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			application.Stop()
			logger.Info("shutdown complete")
			return nil
		case <-watcher.Events():
			reloadNow("config file change")
		}
	}
}

// loadValidated parses the config file and runs semantic validation in
// one step, so every entry point rejects a bad file the same way.
func loadValidated(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
