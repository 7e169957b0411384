package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appsync "github.com/vitrine/backend/internal/application/catalogsync"
	appintegration "github.com/vitrine/backend/internal/application/integration"
	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/infrastructure/auth"
	"github.com/vitrine/backend/internal/infrastructure/cache"
	"github.com/vitrine/backend/internal/infrastructure/config"
	"github.com/vitrine/backend/internal/infrastructure/ecommerce"
	"github.com/vitrine/backend/internal/infrastructure/logger"
	"github.com/vitrine/backend/internal/infrastructure/persistence"
	"github.com/vitrine/backend/internal/infrastructure/scheduler"
	"github.com/vitrine/backend/internal/infrastructure/telemetry"
	"github.com/vitrine/backend/internal/interfaces/http/handler"
	"github.com/vitrine/backend/internal/interfaces/http/middleware"
	"github.com/vitrine/backend/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(loggerConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync(log) }()

	if err := run(cfg, log); err != nil {
		log.Error("Server exited with error", zap.Error(err))
		_ = logger.Sync(log)
		os.Exit(1)
	}
}

// closer is something released during shutdown, in reverse registration order
type closer struct {
	name string
	fn   func(ctx context.Context) error
}

func run(cfg *config.Config, baseLog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []closer
	defer func() { shutdown(closers, baseLog) }()

	// Telemetry
	telCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}
	tp, err := telemetry.NewTracerProvider(ctx, telCfg, baseLog)
	if err != nil {
		return fmt.Errorf("tracer provider: %w", err)
	}
	closers = append(closers, closer{"tracer provider", tp.Shutdown})

	mp, err := telemetry.NewMeterProvider(ctx, telCfg, cfg.Telemetry.MetricsInterval, baseLog)
	if err != nil {
		return fmt.Errorf("meter provider: %w", err)
	}
	closers = append(closers, closer{"meter provider", mp.Shutdown})

	lp, err := telemetry.NewLoggerProvider(ctx, telCfg, baseLog)
	if err != nil {
		return fmt.Errorf("logger provider: %w", err)
	}
	closers = append(closers, closer{"logger provider", lp.Shutdown})

	minLevel, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		minLevel = zapcore.InfoLevel
	}
	log := telemetry.BridgeLogger(baseLog, lp, cfg.Telemetry.ServiceName, minLevel)

	log.Info("Starting Vitrine sync service",
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Database
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithGormLogger(log, cfg.Database.LogLevel, cfg.Database.SlowThreshold, cfg.Telemetry.DBLogFullSQL),
	)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	closers = append(closers, closer{"database", func(context.Context) error { return db.Close() }})
	log.Info("Database connected", zap.String("driver", db.Driver))

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	dbTracing.DBSystem = db.Driver
	if err := telemetry.RegisterDBTracing(db.DB, dbTracing, log); err != nil {
		return fmt.Errorf("database tracing: %w", err)
	}

	if db.Driver == "sqlite" {
		// sqlite deployments are single-node; postgres schemas go through cmd/migrate
		if err := persistence.AutoMigrate(db.DB); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}

	// Repositories
	mirrorRepo := persistence.NewGormMirrorRepository(db.DB)
	queueRepo := persistence.NewGormSyncQueueRepository(db.DB)
	statusRepo := persistence.NewGormSyncStatusRepository(db.DB)
	integrationRepo := persistence.NewGormRemoteIntegrationRepository(db.DB)

	// Shared stores
	stores := cache.NewStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	)
	closers = append(closers, closer{"cache stores", func(context.Context) error { return stores.Close() }})

	runStore, err := stores.CreateRunStore(cfg.Sync.RunRetention)
	if err != nil {
		return err
	}
	dedupeStore, err := stores.CreateIdempotencyStore()
	if err != nil {
		return err
	}

	// Remote catalogs
	catalogs := ecommerce.NewWooCatalogFactory(ecommerce.WooTransportDefaults(
		cfg.Remote.RequestTimeout, cfg.Remote.PageSize, cfg.Remote.RequestsPerSecond, cfg.Remote.Burst,
	), log)
	resolver := appsync.NewCatalogResolver(integrationRepo, catalogs)

	// Metrics
	var recorder appsync.MetricsRecorder
	syncMetrics, err := telemetry.NewSyncMetrics(mp.Meter("vitrine/sync"), log)
	if err != nil {
		log.Warn("Sync metrics unavailable", zap.Error(err))
	} else {
		recorder = syncMetrics
		syncMetrics.StartQueueDepthCollection(ctx, integrationRepo, queueRepo, cfg.Telemetry.MetricsInterval)
		closers = append(closers, closer{"sync metrics", func(context.Context) error {
			syncMetrics.Stop()
			return nil
		}})
	}

	// Application services
	settings := syncSettings(cfg.Sync)
	orchestrator := appsync.NewOrchestrator(appsync.OrchestratorDeps{
		Discovery: appsync.NewDiscoveryService(resolver, mirrorRepo, queueRepo, statusRepo, log),
		Puller:    appsync.NewPullExecutor(resolver, mirrorRepo, settings, recorder, log),
		Pusher:    appsync.NewPushQueueProcessor(resolver, mirrorRepo, queueRepo, settings, recorder, log),
		Resolver:  resolver,
		Mirror:    mirrorRepo,
		Queue:     queueRepo,
		Status:    statusRepo,
		Runs:      runStore,
		Metrics:   recorder,
	}, settings, log)
	localChanges := appsync.NewLocalChangeService(mirrorRepo, queueRepo, settings, log)
	queueService := appsync.NewQueueService(queueRepo, settings, log)
	integrationService := appintegration.NewIntegrationService(integrationRepo, catalogs, log)

	// Background workers
	jobCfg := scheduler.DefaultSyncJobSchedulerConfig()
	if cfg.Scheduler.MaxConcurrentJobs > 0 {
		jobCfg.MaxConcurrentJobs = cfg.Scheduler.MaxConcurrentJobs
		jobCfg.QueueSize = cfg.Scheduler.MaxConcurrentJobs * 10
	}
	if cfg.Scheduler.JobTimeout > 0 {
		jobCfg.JobTimeout = cfg.Scheduler.JobTimeout
	}
	if cfg.Scheduler.HistoryLimit > 0 {
		jobCfg.HistoryLimit = cfg.Scheduler.HistoryLimit
	}
	jobs, err := scheduler.NewSyncJobScheduler(jobCfg, scheduler.NewFullSyncExecutor(orchestrator, log), log)
	if err != nil {
		return fmt.Errorf("job scheduler: %w", err)
	}
	if err := jobs.Start(ctx); err != nil {
		return fmt.Errorf("job scheduler: %w", err)
	}
	closers = append(closers, closer{"job scheduler", jobs.Stop})

	if cfg.Scheduler.Enabled {
		poller := scheduler.NewPushQueuePoller(orchestrator, queueRepo, scheduler.PushQueuePollerConfig{
			BatchSize:        cfg.Sync.QueueBatchSize,
			PollInterval:     cfg.Scheduler.PollInterval,
			ProcessingLease:  cfg.Sync.ProcessingLease,
			CleanupEnabled:   cfg.Scheduler.QueueRetention > 0,
			CleanupRetention: cfg.Scheduler.QueueRetention,
			CleanupInterval:  time.Hour,
		}, log)
		if err := poller.Start(ctx); err != nil {
			return fmt.Errorf("push queue poller: %w", err)
		}
		closers = append(closers, closer{"push queue poller", poller.Stop})

		if cfg.Scheduler.FullSyncEnabled {
			trigger := scheduler.NewSyncCronTrigger(scheduler.SyncCronTriggerConfig{
				CheckInterval: cfg.Scheduler.FullSyncCheckInterval,
				EntityTypes:   integration.AllEntityTypes(),
			}, integrationRepo, statusRepo, jobs, log)
			if err := trigger.Start(ctx); err != nil {
				return fmt.Errorf("full sync trigger: %w", err)
			}
			closers = append(closers, closer{"full sync trigger", trigger.Stop})
		}
	}

	// HTTP
	middleware.SetupValidator()

	authCfg := middleware.OrganizationAuthConfig{RequireAuth: cfg.JWT.RequireAuth, Logger: log}
	if cfg.JWT.Secret != "" {
		jwtService, err := auth.NewJWTService(cfg.JWT)
		if err != nil {
			return fmt.Errorf("jwt: %w", err)
		}
		authCfg.Validator = jwtService
	} else if cfg.JWT.RequireAuth {
		return auth.ErrMissingSecret
	}

	webhookLimiter := middleware.NewKeyedRateLimiter(cfg.HTTP.WebhookRateLimit, cfg.HTTP.WebhookBurst)
	sweepStop := make(chan struct{})
	go webhookLimiter.RunSweeper(10*time.Minute, sweepStop)
	closers = append(closers, closer{"webhook limiter", func(context.Context) error {
		close(sweepStop)
		return nil
	}})

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version, map[string]handler.Pinger{"database": db})

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins

	engine := router.NewEngine(router.EngineConfig{
		Logger:      log,
		Mode:        ginMode(cfg.App.Env),
		MaxBodySize: cfg.HTTP.MaxBodySize,
		CORS:        corsCfg,
		Security:    middleware.DefaultSecurityConfig(),
		Tracing:     middleware.TracingConfig{ServiceName: cfg.Telemetry.ServiceName, Enabled: tp.IsEnabled()},
		Metrics:     middleware.HTTPMetricsConfig{MeterProvider: mp, Enabled: mp.IsEnabled(), Logger: log},
	}, systemHandler)
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	groups := router.APIGroups(router.Handlers{
		System:      systemHandler,
		Sync:        handler.NewSyncHandler(orchestrator, jobs),
		Queue:       handler.NewQueueHandler(queueService),
		Mirror:      handler.NewMirrorHandler(localChanges),
		Integration: handler.NewIntegrationHandler(integrationService),
		Webhook:     handler.NewWebhookHandler(integrationService, orchestrator, dedupeStore, handler.DefaultWebhookDedupeTTL),
	}, router.APIConfig{
		Auth:         middleware.OrganizationAuth(authCfg),
		WebhookLimit: middleware.RateLimitByKey(webhookLimiter, middleware.ParamKey("organization_id")),
	})
	apiRouter := router.NewRouter(engine, router.WithAPIVersion("v1"))
	for _, g := range groups {
		apiRouter.Register(g)
		log.Debug("Route group registered",
			zap.String("group", g.Name()),
			zap.String("prefix", g.Prefix()),
			zap.Int("routes", len(g.Routes())),
		)
	}
	apiRouter.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited gracefully")
	return nil
}

// shutdown releases closers in reverse order of registration
func shutdown(closers []closer, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := c.fn(ctx); err != nil {
			log.Error("Error during shutdown", zap.String("component", c.name), zap.Error(err))
		}
	}
}

func syncSettings(cfg config.SyncConfig) appsync.Settings {
	return appsync.Settings{
		BatchSize:               cfg.BatchSize,
		MaxRetries:              cfg.MaxRetries,
		ChunkInterval:           cfg.ChunkInterval,
		ChunkTimeout:            cfg.ChunkTimeout,
		QueueBatchSize:          cfg.QueueBatchSize,
		MaxPushPasses:           cfg.MaxPushPasses,
		StaleAfter:              cfg.StaleAfter,
		ProcessingLease:         cfg.ProcessingLease,
		FailRejectedImmediately: cfg.FailRejectedImmediately,
	}
}

// loggerConfig starts from the environment's preset and applies [log] overrides
func loggerConfig(cfg *config.Config) *logger.Config {
	lc := logger.ServerConfig(cfg.App.Env, cfg.App.Name)
	if cfg.Log.Level != "" {
		lc.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		lc.Format = cfg.Log.Format
	}
	if cfg.Log.Output != "" {
		lc.Output = cfg.Log.Output
	}
	return lc
}

func ginMode(env string) string {
	switch env {
	case "production":
		return "release"
	case "test":
		return "test"
	default:
		return "debug"
	}
}
