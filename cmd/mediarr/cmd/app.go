package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmylchreest/mediarr/internal/authz"
	"github.com/jmylchreest/mediarr/internal/cache"
	"github.com/jmylchreest/mediarr/internal/config"
	"github.com/jmylchreest/mediarr/internal/database"
	"github.com/jmylchreest/mediarr/internal/database/migrations"
	"github.com/jmylchreest/mediarr/internal/service"
	"github.com/jmylchreest/mediarr/internal/startup"
	"github.com/jmylchreest/mediarr/internal/storage"
)

// app holds the components shared by the commands that touch the catalog.
type app struct {
	db      *database.DB
	repos   service.Repositories
	cache   *cache.Manager
	thumbs  *storage.ThumbnailStore
	catalog *service.CatalogService
}

// openApp connects to the database, applies migrations and assembles the
// catalog service. A non-nil reg receives the cache metrics.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*app, error) {
	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	if err := migrations.Run(ctx, db.DB, logger); err != nil {
		return nil, errors.Join(fmt.Errorf("running migrations: %w", err), db.Close())
	}

	thumbs, err := storage.NewThumbnailStore(cfg.Storage.ThumbnailPath(), cfg.Storage.MaxThumbnailSize.Bytes())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("initializing thumbnail store: %w", err), db.Close())
	}
	thumbs = thumbs.WithLogger(logger)

	manager := cache.NewManager().WithLogger(logger)
	if reg != nil && cfg.Cache.MetricsEnabled {
		manager = manager.WithMetrics(cache.NewMetrics(reg))
	}

	authorizer, err := authz.NewAuthorizer()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("loading role policy: %w", err), db.Close())
	}

	repos := service.NewGormRepositories(db.DB)
	catalog := service.NewCatalogService(repos, manager, thumbs, cfg.Catalog).
		WithLogger(logger).
		WithAuthorizer(authorizer)

	return &app{
		db:      db,
		repos:   repos,
		cache:   manager,
		thumbs:  thumbs,
		catalog: catalog,
	}, nil
}

// Close waits for background snapshot builds and closes the database.
func (a *app) Close() error {
	a.catalog.WaitForRebuilds()
	return a.db.Close()
}

// housekeep removes files left in the thumbnail directory by interrupted
// uploads and failed creates. Failures are logged and never fatal.
func (a *app) housekeep(ctx context.Context, logger *slog.Logger) {
	dir := a.thumbs.Dir()
	if _, err := startup.CleanupOrphanedUploads(logger, dir, startup.DefaultCleanupAge); err != nil {
		logger.Warn("upload cleanup failed", slog.String("error", err.Error()))
	}
	if _, err := startup.RemoveUnreferencedThumbnails(ctx, logger, dir, a.repos.Media); err != nil {
		logger.Warn("thumbnail sweep failed", slog.String("error", err.Error()))
	}
}
