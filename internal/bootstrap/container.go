package bootstrap

import (
	"context"
	"time"

	"minerva/internal/adapters/ai"
	"minerva/internal/adapters/config"
	errnoop "minerva/internal/adapters/errors/noop"
	"minerva/internal/adapters/errors/sentry"
	pgclient "minerva/internal/adapters/postgres"
	redisclient "minerva/internal/adapters/redis"
	"minerva/internal/api"
	"minerva/internal/api/health"
	"minerva/internal/artifacts"
	"minerva/internal/cache"
	"minerva/internal/dataflows"
	"minerva/internal/domain/decision"
	"minerva/internal/events"
	pgrepo "minerva/internal/repository/postgres"
	"minerva/internal/run"
	"minerva/internal/tools"
	"minerva/internal/tools/middleware"
	"minerva/pkg/errors"
	"minerva/pkg/logger"
)

// Container holds all application dependencies and their lifecycle.
// Components are organized in initialization order.
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure layer
	PG    *pgclient.Client
	Redis *redisclient.Client

	// Domain layer
	Decisions decision.Repository
	Runs      decision.RunRepository
	Store     *cache.Store
	Adapter   *dataflows.Adapter
	Registry  *tools.Registry
	Recorder  *middleware.Recorder

	// Application layer
	Provider   ai.ChatProvider
	Bus        *events.Bus
	Artifacts  *artifacts.Writer
	Supervisor *run.Supervisor
	HTTPServer *api.Server
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{}
}

// MustInit builds every component, panicking on unrecoverable errors.
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitDataLayer()
	c.MustInitApplication()
}

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)
}

// MustInitInfrastructure initializes data stores (Postgres, Redis)
func (c *Container) MustInitInfrastructure() {
	var err error

	c.Log.Info("Connecting to PostgreSQL...")
	c.PG, err = pgclient.NewClient(c.Config.Postgres)
	if err != nil {
		c.Log.Fatalf("failed to connect postgres: %v", err)
	}
	c.Log.Info("✓ PostgreSQL connected")

	c.Log.Info("Connecting to Redis...")
	c.Redis, err = redisclient.NewClient(c.Config.Redis)
	if err != nil {
		c.Log.Fatalf("failed to connect redis: %v", err)
	}
	c.Log.Info("✓ Redis connected")
}

// MustInitDataLayer wires the repositories, the HTTP cache, the vendor
// adapter, and the tool registry.
func (c *Container) MustInitDataLayer() {
	c.Decisions = pgrepo.NewDecisionRepository(c.PG.DB())
	c.Runs = pgrepo.NewRunRepository(c.PG.DB())

	policy, err := cache.LoadPolicy(c.Config.Data.CachePolicyPath)
	if err != nil {
		c.Log.Fatalf("failed to load cache policy: %v", err)
	}

	c.Store, err = cache.NewStore(pgrepo.NewHTTPCacheRepository(c.PG.DB()), 1024)
	if err != nil {
		c.Log.Fatalf("failed to create cache store: %v", err)
	}

	c.Adapter = dataflows.NewAdapter(c.Store, policy)
	c.registerVendors()

	c.Recorder = middleware.NewRecorder()
	c.Registry = tools.NewRegistry()

	catalog := tools.NewCatalog(c.Adapter)
	if err := catalog.RegisterAll(c.Registry); err != nil {
		c.Log.Fatalf("failed to register tools: %v", err)
	}
	c.Registry.Use(
		middleware.TimeoutMiddleware{Timeout: 30 * time.Second},
		middleware.AuditMiddleware{Recorder: c.Recorder},
	)
	c.Log.Infof("✓ Tool registry ready (%d tools)", len(c.Registry.List()))
}

func (c *Container) registerVendors() {
	if c.Config.Data.UseMockData {
		c.Log.Warn("USE_MOCK_DATA is set: serving canned vendor payloads")
		c.Adapter.RegisterVendor(dataflows.NewMockVendor(), dataflows.AllDataTypes()...)
		return
	}

	finnhub := dataflows.NewFinnhubClient(c.Config.Data.FinnhubAPIKey, c.Config.Data.HTTPTimeout)
	c.Adapter.RegisterVendor(finnhub,
		dataflows.TypeQuote, dataflows.TypeProfile, dataflows.TypeMetrics,
		dataflows.TypeCompanyNews, dataflows.TypeGlobalNews, dataflows.TypeSearchNews,
		dataflows.TypeBalanceSheet, dataflows.TypeCashflow, dataflows.TypeIncomeStmt,
		dataflows.TypeInsiderTransactions, dataflows.TypeInsiderSentiment,
	)

	reddit := dataflows.NewRedditClient(c.Config.Data.RedditUserAgent, c.Config.Data.HTTPTimeout)
	c.Adapter.RegisterVendor(reddit, dataflows.TypeReddit)
}

// MustInitApplication wires the LLM provider, the event bus, the run
// supervisor, and the HTTP server.
func (c *Container) MustInitApplication() {
	c.Provider = ai.NewOpenAIProvider(
		c.Config.AI.OpenAIKey,
		c.Config.AI.PerCallTimeout,
		c.Config.AI.RequestsPerMin,
	)

	c.Bus = events.NewBus(
		events.WithArchive(events.NewRedisArchive(c.Redis)),
		events.WithRetention(c.Config.Orchestrator.EventRetention),
	)

	c.Artifacts = artifacts.NewWriter(c.Config.Data.LogsDir)

	c.Supervisor = run.NewSupervisor(c.Config, run.Deps{
		Provider:  c.Provider,
		Registry:  c.Registry,
		Adapter:   c.Adapter,
		Bus:       c.Bus,
		Decisions: c.Decisions,
		Runs:      c.Runs,
		Artifacts: c.Artifacts,
		Recorder:  c.Recorder,
	})

	healthHandler := health.New(c.Log, c.PG.DB(), c.Redis.Client(), c.Config.App.Name, run.OrchestratorVersion)
	analysisHandler := api.NewAnalysisHandler(c.Supervisor, c.Bus, c.Decisions)

	c.HTTPServer = api.NewServer(api.ServerConfig{
		Port:        c.Config.App.Port,
		ServiceName: c.Config.App.Name,
		Version:     run.OrchestratorVersion,
	}, analysisHandler, healthHandler, c.Log)
}

// Start runs the HTTP server. Blocks until the server stops.
func (c *Container) Start() error {
	return c.HTTPServer.Start()
}

// Shutdown stops components in reverse initialization order.
func (c *Container) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c.Log.Info("[1/4] Stopping HTTP server...")
	if err := c.HTTPServer.Shutdown(shutdownCtx); err != nil {
		c.Log.Errorw("HTTP server shutdown failed", "error", err)
	}

	c.Log.Info("[2/4] Draining in-flight runs...")
	if err := c.Supervisor.Shutdown(shutdownCtx); err != nil {
		c.Log.Warnw("Run drain incomplete", "error", err)
	}

	c.Log.Info("[3/4] Flushing error tracker...")
	if err := c.ErrorTracker.Flush(shutdownCtx); err != nil {
		c.Log.Warnw("Error tracker flush failed", "error", err)
	}

	c.Log.Info("[4/4] Closing data stores...")
	if err := c.Redis.Close(); err != nil {
		c.Log.Errorw("Redis close failed", "error", err)
	}
	if err := c.PG.Close(); err != nil {
		c.Log.Errorw("Postgres close failed", "error", err)
	}

	c.Log.Info("✓ Shutdown complete")
}

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}
