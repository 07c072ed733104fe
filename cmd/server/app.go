package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jimdaga/ideaforge/internal/analysis"
	"github.com/jimdaga/ideaforge/internal/config"
	"github.com/jimdaga/ideaforge/internal/dailyidea"
	"github.com/jimdaga/ideaforge/internal/database"
	"github.com/jimdaga/ideaforge/internal/notify"
	"github.com/jimdaga/ideaforge/internal/provider"
	"github.com/jimdaga/ideaforge/internal/quota"
	"github.com/jimdaga/ideaforge/internal/storage"
	"github.com/jimdaga/ideaforge/internal/store"
	"gorm.io/gorm"
)

const stubDelay = 2 * time.Second

// app holds the components shared by the serve and worker commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *gorm.DB
	store    *store.Store
	ledger   *quota.Ledger
	analyses *analysis.Service
	daily    *dailyidea.Scheduler
	blobs    *storage.MinIOClient
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, migrate bool) (*app, error) {
	db, err := database.Init(cfg.DatabaseURL, dbPool(cfg))
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, db: db}
	a.closers = append(a.closers, func() error { return database.Close(db) })

	if migrate {
		if err := database.RunMigrations(db); err != nil {
			a.close()
			return nil, err
		}
	}

	a.store = store.New(db)
	a.ledger = quota.NewLedger(a.store,
		quota.WithAllotment(cfg.DailyCredits),
		quota.WithLocation(cfg.Location()),
	)

	adapter, err := provider.NewAdapter(newTransport(cfg, logger),
		provider.WithTimeout(cfg.ProviderTimeout),
		provider.WithLogger(logger),
	)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create provider adapter: %w", err)
	}

	a.analyses = analysis.NewService(a.store, a.ledger, adapter, a.newNotifier(), logger)

	a.daily, err = dailyidea.NewScheduler(a.store, a.analyses, logger,
		dailyidea.WithLocation(cfg.Location()),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	a.blobs = a.newBlobStore(ctx)
	return a, nil
}

func dbPool(cfg *config.Config) database.Pool {
	return database.Pool{
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}
}

func newTransport(cfg *config.Config, logger *slog.Logger) provider.Transport {
	if cfg.ProviderStubMode {
		logger.Info("Provider running in stub mode")
		return provider.NewStubTransport(stubDelay)
	}
	logger.Info("Provider configured", "base_url", cfg.ProviderBaseURL, "model", cfg.ProviderModel)
	return provider.NewHTTPTransport(
		cfg.ProviderBaseURL,
		cfg.ProviderAPIKey,
		cfg.ProviderModel,
		cfg.ProviderMaxTokens,
		cfg.ProviderTimeout,
	)
}

func (a *app) newNotifier() notify.Notifier {
	if a.cfg.RedisURL == "" {
		return notify.NewLogNotifier(a.logger)
	}
	notifier, err := notify.NewStreamNotifier(a.cfg.RedisURL)
	if err != nil {
		a.logger.Warn("Email stream unavailable, logging notifications instead", "error", err)
		return notify.NewLogNotifier(a.logger)
	}
	a.closers = append(a.closers, notifier.Close)
	return notifier
}

// newBlobStore returns nil when MinIO is not configured or unreachable;
// uploads are then refused but link attachments still work.
func (a *app) newBlobStore(ctx context.Context) *storage.MinIOClient {
	if a.cfg.MinIOAccessKey == "" || a.cfg.MinIOSecretKey == "" {
		a.logger.Warn("MinIO credentials not set, file uploads disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	blobs, err := storage.NewMinIOClient(ctx,
		a.cfg.MinIOEndpoint,
		a.cfg.MinIOAccessKey,
		a.cfg.MinIOSecretKey,
		a.cfg.MinIOBucket,
		a.cfg.MinIOUseSSL,
	)
	if err != nil {
		a.logger.Warn("MinIO unavailable, file uploads disabled", "endpoint", a.cfg.MinIOEndpoint, "error", err)
		return nil
	}
	a.logger.Info("MinIO connected", "endpoint", a.cfg.MinIOEndpoint, "bucket", a.cfg.MinIOBucket)
	return blobs
}

// close waits for background daily idea work, then releases connections in
// reverse order of creation.
func (a *app) close() {
	if a.daily != nil {
		a.daily.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("Shutdown error", "error", err)
		}
	}
}
