package main

import (
	"context"
	"errors"

	"go.uber.org/zap"

	appsync "github.com/vitrine/backend/internal/application/catalogsync"
	"github.com/vitrine/backend/internal/infrastructure/cache"
	"github.com/vitrine/backend/internal/infrastructure/config"
	"github.com/vitrine/backend/internal/infrastructure/ecommerce"
	"github.com/vitrine/backend/internal/infrastructure/logger"
	"github.com/vitrine/backend/internal/infrastructure/persistence"
)

// app is the sync engine wired for a single command invocation
type app struct {
	cfg          *config.Config
	log          *zap.Logger
	db           *persistence.Database
	stores       *cache.StoreFactory
	orchestrator *appsync.Orchestrator
	queue        *appsync.QueueService
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger()
	if err != nil {
		return nil, err
	}

	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(log, "silent", 0, false))
	if err != nil {
		return nil, err
	}

	mirrorRepo := persistence.NewGormMirrorRepository(db.DB)
	queueRepo := persistence.NewGormSyncQueueRepository(db.DB)
	statusRepo := persistence.NewGormSyncStatusRepository(db.DB)
	integrationRepo := persistence.NewGormRemoteIntegrationRepository(db.DB)

	stores := cache.NewStoreFactory(cfg.Redis, cache.WithLogger(log), cache.WithInMemoryFallback(true))
	runs, err := stores.CreateRunStore(cfg.Sync.RunRetention)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	catalogs := ecommerce.NewWooCatalogFactory(ecommerce.WooTransportDefaults(
		cfg.Remote.RequestTimeout, cfg.Remote.PageSize, cfg.Remote.RequestsPerSecond, cfg.Remote.Burst,
	), log)
	resolver := appsync.NewCatalogResolver(integrationRepo, catalogs)

	settings := appsync.Settings{
		BatchSize:               cfg.Sync.BatchSize,
		MaxRetries:              cfg.Sync.MaxRetries,
		ChunkInterval:           cfg.Sync.ChunkInterval,
		ChunkTimeout:            cfg.Sync.ChunkTimeout,
		QueueBatchSize:          cfg.Sync.QueueBatchSize,
		MaxPushPasses:           cfg.Sync.MaxPushPasses,
		StaleAfter:              cfg.Sync.StaleAfter,
		ProcessingLease:         cfg.Sync.ProcessingLease,
		FailRejectedImmediately: cfg.Sync.FailRejectedImmediately,
	}

	return &app{
		cfg:    cfg,
		log:    log,
		db:     db,
		stores: stores,
		orchestrator: appsync.NewOrchestrator(appsync.OrchestratorDeps{
			Discovery: appsync.NewDiscoveryService(resolver, mirrorRepo, queueRepo, statusRepo, log),
			Puller:    appsync.NewPullExecutor(resolver, mirrorRepo, settings, nil, log),
			Pusher:    appsync.NewPushQueueProcessor(resolver, mirrorRepo, queueRepo, settings, nil, log),
			Resolver:  resolver,
			Mirror:    mirrorRepo,
			Queue:     queueRepo,
			Status:    statusRepo,
			Runs:      runs,
		}, settings, log),
		queue: appsync.NewQueueService(queueRepo, settings, log),
	}, nil
}

func (a *app) Close() error {
	err := errors.Join(a.stores.Close(), a.db.Close())
	_ = logger.Sync(a.log)
	return err
}

// withApp opens the engine, runs fn and releases it
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.log.Warn("Failed to close resources", zap.Error(cerr))
		}
	}()
	return fn(ctx, a)
}
