package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/agent"
	"github.com/parleyhq/parley/internal/channel"
	"github.com/parleyhq/parley/internal/config"
	ctxengine "github.com/parleyhq/parley/internal/context"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/cron"
	"github.com/parleyhq/parley/internal/hook"
	"github.com/parleyhq/parley/internal/ledger"
	"github.com/parleyhq/parley/internal/node"
	"github.com/parleyhq/parley/internal/observability"
	"github.com/parleyhq/parley/internal/provider"
	"github.com/parleyhq/parley/internal/router"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/tool"
	"github.com/parleyhq/parley/internal/transcribe"
	"github.com/parleyhq/parley/internal/usage"
	"github.com/parleyhq/parley/internal/workspace"
)

// wireConfig carries the collaborators wireRouter needs beyond the app and
// its context. All fields except auditSink and tracer are always set.
type wireConfig struct {
	cfg         *config.Config
	ids         []string
	logger      *slog.Logger
	credentials *security.CredentialStore
	audit       *security.AuditLogger
	auditSink   io.Writer
	rateLimiter *security.RateLimiter
	registry    *tool.Registry
	metrics     *observability.Metrics
	tracer      *observability.Tracer
}

// routerModule adapts *router.Router to the core module lifecycle so it
// starts and stops with the app's other modules.
type routerModule struct {
	r   *router.Router
	ctx context.Context
}

func (m *routerModule) ModuleInfo() core.ModuleInfo { return core.ModuleInfo{ID: "router"} }

func (m *routerModule) Start() error {
	m.r.Start(m.ctx)
	return nil
}

func (m *routerModule) Stop(ctx context.Context) error {
	m.r.Stop(ctx)
	return nil
}

// chainModule runs the provider chain's health-check loop as part of the
// app lifecycle.
type chainModule struct {
	chain *provider.Chain
	ctx   context.Context
}

func (m *chainModule) ModuleInfo() core.ModuleInfo { return core.ModuleInfo{ID: "provider.chain"} }

func (m *chainModule) Start() error {
	m.chain.Start(m.ctx)
	return nil
}

func (m *chainModule) Stop(_ context.Context) error {
	m.chain.Stop()
	return nil
}

// cronModule runs the background job scheduler as part of the app lifecycle.
type cronModule struct {
	sched *cron.Scheduler
	ctx   context.Context
}

func (m *cronModule) ModuleInfo() core.ModuleInfo { return core.ModuleInfo{ID: "cron.scheduler"} }

func (m *cronModule) Start() error {
	return m.sched.Start(m.ctx)
}

func (m *cronModule) Stop(ctx context.Context) error {
	return m.sched.Stop(ctx)
}

// wireRouter assembles the message path: channels feed the router, the
// router drives the generation stack, and responses go back out through the
// dispatcher. It must be called after LoadModules and before Start.
func wireRouter(app *core.App, appCtx *core.AppContext, wc wireConfig) error {
	logger := wc.logger

	// Discover channels and providers from loaded modules.
	dispatcher := channel.NewDispatcher()
	var channels []channel.Channel
	providers := make(map[string]provider.Provider)
	var providerIDs []string

	for _, id := range wc.ids {
		m, ok := app.Module(id)
		if !ok {
			continue
		}
		if ch, ok := m.(channel.Channel); ok {
			// Register under the short name (e.g. "discord") because that
			// is what channels set as msg.Channel on inbound messages.
			name := ch.ModuleInfo().ID.Name()
			if err := dispatcher.Register(name, ch); err != nil {
				return fmt.Errorf("registering channel %s: %w", id, err)
			}
			channels = append(channels, ch)
			logger.Info("router: registered channel", "channel", name)
		}
		if p, ok := m.(provider.Provider); ok {
			providers[id] = p
			providerIDs = append(providerIDs, id)
			logger.Info("router: provider available", "module", id)
		}
	}

	if len(channels) == 0 {
		logger.Info("router: no channels loaded, nothing to wire")
		return nil
	}
	if len(providers) == 0 {
		return fmt.Errorf("router: at least one provider module is required")
	}

	// Provider chain: the configured layout, or every discovered provider
	// with the first as primary and the rest as fallbacks.
	entries, err := chainEntries(wc.cfg, providers, providerIDs, wc.credentials)
	if err != nil {
		return err
	}
	chain, err := provider.NewChain(entries, provider.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("building provider chain: %w", err)
	}
	appCtx.RegisterService("provider.chain", chain)
	app.AppendModule("provider.chain", &chainModule{chain: chain, ctx: context.Background()})

	agentCfg := wc.cfg.Agent
	if agentCfg == nil {
		agentCfg = &config.AgentConfig{}
	}

	led := ledger.New()

	executor := agent.NewToolExecutor(agent.ToolExecutorConfig{
		Registry:  wc.registry,
		PolicyCfg: agentCfg.Tools.PolicyConfig(),
		PolicyCtx: tool.PolicyContextDM,
		Env: tool.ExecutionEnv{
			Workspace: appCtx.Workspace,
			DataDir:   appCtx.DataDir,
		},
	})

	// The change-model tool drives the first chain entry that can switch.
	for _, e := range entries {
		if s, ok := e.Provider.(provider.ModelSwitcher); ok {
			cm := observability.InstrumentTool(agent.NewChangeModelTool(s), wc.metrics)
			if err := wc.registry.Register(cm); err != nil {
				return fmt.Errorf("registering change_model tool: %w", err)
			}
			break
		}
	}

	// Paired devices surface their capabilities as tools.
	if mod, ok := app.Module("node.manager"); ok {
		if mgr, ok := mod.(*node.Manager); ok {
			if err := mgr.RegisterDeviceTools(wc.registry); err != nil {
				return fmt.Errorf("registering device tools: %w", err)
			}
		}
	}

	// Usage recorder: a storage module may have registered a persistent
	// one; otherwise fall back to in-memory so the loop still enforces
	// budgets and the gateway can report today's numbers.
	var recorder usage.Recorder
	if svc, ok := appCtx.Service("usage.recorder"); ok {
		recorder, _ = svc.(usage.Recorder)
	}
	if recorder == nil {
		mem := usage.NewInMemoryRecorder()
		appCtx.RegisterService("usage.recorder", mem)
		recorder = mem
	}

	primary := &chainProvider{chain: chain, role: provider.RolePrimary}
	driver := agent.NewDriver(primary, executor, led, agent.LoopConfig{
		MaxIterations: agentCfg.MaxIterations,
		TokenBudget:   agentCfg.TokenBudget,
		Timeout:       parseDur(agentCfg.GenerationTimeout),
	},
		agent.WithUsageRecorder(observability.InstrumentRecorder(recorder, wc.metrics)),
		agent.WithWindowCheck(agent.WindowCheck{
			Estimator:      ctxengine.NewCharEstimator(0),
			WindowOverride: agentCfg.MaxContextTokens,
			ReplyReserve:   ctxengine.DefaultReservedForReply,
		}),
		agent.WithLogger(logger),
	)
	var generator router.Generator = driver
	if wc.tracer != nil {
		generator = observability.NewTracedGenerator(driver, wc.tracer)
	}

	ctxCfg := ctxengine.ContextConfig{
		MaxTurns:         agentCfg.MaxTurns,
		MaxContextTokens: agentCfg.MaxContextTokens,
	}
	builderOpts := []ctxengine.BuilderOption{
		ctxengine.WithLogger(logger),
		ctxengine.WithCompactor(ctxengine.NewCompactor(&chainSummarizer{chain: chain}, ctxCfg)),
	}
	if svc, ok := appCtx.Service("transcriber.whisper"); ok {
		if tr, ok := svc.(transcribe.Transcriber); ok {
			builderOpts = append(builderOpts, ctxengine.WithTranscriber(tr))
		}
	}
	if svc, ok := appCtx.Service("security.urlfilter"); ok {
		if f, ok := svc.(*security.URLFilter); ok {
			builderOpts = append(builderOpts, ctxengine.WithURLFilter(f))
		}
	}
	builder := ctxengine.NewBuilder(led, ctxCfg, builderOpts...)

	ws := workspace.New(appCtx.Workspace)
	if err := ws.EnsureStructure(); err != nil {
		return fmt.Errorf("preparing workspace: %w", err)
	}
	prompt := workspace.NewPrompt(workspace.PromptConfig{
		Persona:        workspace.NewPersonaLoader(ws.PersonaPath()),
		SkillsDir:      ws.SkillsDir(),
		AvailableTools: wc.registry.Names,
		Logger:         logger,
	})

	hooks := hook.NewPipeline()
	if wc.auditSink != nil {
		hooks.Register(hook.NewAuditHook(wc.auditSink))
	}

	mode := router.GroupPolicyMode(agentCfg.GroupPolicy)
	if mode == "" {
		mode = router.GroupPolicyRequireMention
	}
	maxIdle := parseDur(agentCfg.SessionMaxIdle)
	if maxIdle <= 0 {
		maxIdle = router.DefaultMaxIdle
	}

	r, err := router.NewRouter(router.Config{
		WorkerCount: agentCfg.Workers,
		MaxIdle:     maxIdle,
		GroupPolicy: router.GroupPolicy{
			Mode:      mode,
			Allowlist: agentCfg.GroupAllowlist,
			Denylist:  agentCfg.GroupDenylist,
		},
		Generator:      generator,
		Builder:        builder,
		ResponseSender: dispatcher,
		Logger:         logger,
		Ledger:         led,
		Registry:       wc.registry,
		Grants:         agentCfg.ToolGrants(),
		ChannelLookup:  dispatcher,
		Prompt:         prompt,
		HookPipeline:   hooks,
		RateLimiter:    wc.rateLimiter,
		AuditLogger:    wc.audit,
		Observer:       wc.metrics,
		HistoryLimit:   agentCfg.HistoryLimit,
		AwaitTimeout:   parseDur(agentCfg.AwaitTimeout),
	})
	if err != nil {
		return fmt.Errorf("building router: %w", err)
	}

	// Point every channel's inbox at the router.
	for _, ch := range channels {
		ch.SetInbox(r.Submit)
	}
	app.AppendModule("router", &routerModule{r: r, ctx: context.Background()})

	// Expose router state for the gateway.
	appCtx.RegisterService("router.sessions", r.Sessions())
	appCtx.RegisterService("router.queue_depth", r.QueueDepth)

	wc.metrics.TrackActiveSessions(func() float64 {
		return float64(r.Sessions().Len())
	})

	// Background jobs: idle-session sweeps and the nightly usage rollup.
	sched := cron.NewScheduler(logger)
	if err := sched.RegisterJob(&cron.SessionCleanupJob{
		Store:   r.Sessions(),
		MaxIdle: maxIdle,
		Logger:  logger,
	}); err != nil {
		return fmt.Errorf("registering session cleanup job: %w", err)
	}
	rollup := &cron.UsageRollupJob{
		Recorder:      recorder,
		RetentionDays: agentCfg.UsageRetentionDays,
		Logger:        logger,
	}
	if pruner, ok := recorder.(cron.UsagePruner); ok {
		rollup.Pruner = pruner
	}
	if err := sched.RegisterJob(rollup); err != nil {
		return fmt.Errorf("registering usage rollup job: %w", err)
	}
	app.AppendModule("cron.scheduler", &cronModule{sched: sched, ctx: context.Background()})

	logger.Info("router: wired",
		"channels", len(channels),
		"chain_entries", len(entries),
	)
	return nil
}

// chainEntries builds the provider chain layout. With an explicit providers
// section each entry references a loaded module by ID; without one every
// discovered provider joins in sorted order, the first as primary and the
// rest as fallbacks for all roles. Auth keys from the config enter the
// credential store so the redactor scrubs them from logs.
func chainEntries(
	cfg *config.Config,
	providers map[string]provider.Provider,
	ids []string,
	creds *security.CredentialStore,
) ([]provider.ChainEntry, error) {
	if cfg.Providers == nil || len(cfg.Providers.Chain) == 0 {
		slices.Sort(ids)
		entries := make([]provider.ChainEntry, 0, len(ids))
		for i, id := range ids {
			role := provider.RoleFallback
			if i == 0 {
				role = provider.RolePrimary
			}
			entries = append(entries, provider.ChainEntry{
				Name:     id,
				Provider: providers[id],
				Role:     role,
			})
		}
		return entries, nil
	}

	entries := make([]provider.ChainEntry, 0, len(cfg.Providers.Chain))
	for _, ec := range cfg.Providers.Chain {
		p, ok := providers[ec.Module]
		if !ok {
			return nil, fmt.Errorf("provider chain: module %s is not loaded", ec.Module)
		}
		role := provider.Role(ec.Role)
		if role == "" {
			role = provider.RolePrimary
		}
		entry := provider.ChainEntry{
			Name:     ec.Module,
			Provider: p,
			Role:     role,
		}
		for _, fr := range ec.FallbackFor {
			entry.FallbackFor = append(entry.FallbackFor, provider.Role(fr))
		}
		if len(ec.AuthKeys) > 0 {
			auth, err := provider.NewAuthProfile(ec.AuthKeys...)
			if err != nil {
				return nil, fmt.Errorf("provider chain: %s: %w", ec.Module, err)
			}
			entry.Auth = auth
			base := strings.ReplaceAll(ec.Module, ".", "_")
			for i, key := range ec.AuthKeys {
				creds.Set(fmt.Sprintf("%s_auth_key_%d", base, i), key)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// parseDur converts a config duration string to a time.Duration. Validation
// already rejected unparseable values; an empty string yields zero so the
// component's own default applies.
func parseDur(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
