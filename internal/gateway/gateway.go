package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/node"
	"github.com/parleyhq/parley/internal/observability"
	"github.com/parleyhq/parley/internal/provider"
	"github.com/parleyhq/parley/internal/router"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/usage"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

func init() { core.RegisterModule(&Gateway{}) }

// Gateway is the HTTP gateway module. It exposes health, Prometheus metrics,
// and admin endpoints on a loopback bind. It is a leaf module; nothing
// imports it.
type Gateway struct {
	config     Config
	configPath string
	logger     *slog.Logger
	appCtx     *core.AppContext
	server     *http.Server
	startedAt  time.Time

	// Bound lazily at Start() via the service registry.
	sessions   router.SessionStore
	chain      *provider.Chain
	recorder   usage.Recorder
	metrics    *observability.Metrics
	gatherer   prometheus.Gatherer
	audit      *security.AuditLogger
	limiter    *security.RateLimiter
	redactor   *security.Redactor
	devices    *node.DeviceStore
	queueDepth func() int
	reload     func() error
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "gateway.http", New: func() core.Module { return new(Gateway) }}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(doc *yaml.Node) error {
	if err := doc.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	g.config.normalize()
	return nil
}

// Provision implements core.Provisioner. Collaborators are not resolved here:
// the gateway provisions before the app has registered its services, so
// binding waits until Start().
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger
	return nil
}

// Validate implements core.Validator, rejecting unusable bind addresses.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return fmt.Errorf("gateway: invalid bind address %q: %v", g.config.Bind, err)
	}
	return nil
}

// Start implements core.Starter. It binds collaborators from the service
// registry and brings up the HTTP listener.
func (g *Gateway) Start() error {
	g.resolveServices()
	g.startedAt = time.Now()

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", g.config.Bind, err)
	}

	g.server = &http.Server{
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// resolve binds a named service onto dst when the dynamic type matches.
func resolve[T any](ctx *core.AppContext, name string, dst *T) {
	svc, ok := ctx.Service(name)
	if !ok {
		return
	}
	if v, ok := svc.(T); ok {
		*dst = v
	}
}

// resolveServices binds collaborators from the service registry. Every
// dependency is optional; endpoints degrade to empty or absent data when a
// service is missing, so the gateway can run in a partially wired process.
func (g *Gateway) resolveServices() {
	resolve(g.appCtx, "router.sessions", &g.sessions)
	resolve(g.appCtx, "router.queue_depth", &g.queueDepth)
	resolve(g.appCtx, "provider.chain", &g.chain)
	resolve(g.appCtx, "usage.recorder", &g.recorder)
	resolve(g.appCtx, "observability.metrics", &g.metrics)
	resolve(g.appCtx, "observability.registry", &g.gatherer)
	resolve(g.appCtx, "security.audit", &g.audit)
	resolve(g.appCtx, "security.rate_limiter", &g.limiter)
	resolve(g.appCtx, "security.redactor", &g.redactor)
	resolve(g.appCtx, "node.store", &g.devices)
	resolve(g.appCtx, "config.path", &g.configPath)
	resolve(g.appCtx, "config.reloader", &g.reload)
}

// Stop implements core.Stopper, draining in-flight requests within the
// configured shutdown timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway shutting down")

	ctx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()
	return g.server.Shutdown(ctx)
}
