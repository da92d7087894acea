package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	internalhttp "github.com/jmylchreest/mediarr/internal/http"
	"github.com/jmylchreest/mediarr/internal/http/handlers"
	"github.com/jmylchreest/mediarr/internal/observability"
	"github.com/jmylchreest/mediarr/internal/scheduler"
	"github.com/jmylchreest/mediarr/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mediarr server",
	Long: `Start the mediarr HTTP server and API.

The server provides:
- REST API for media, ratings, reviews and watch history
- Cached rankings and a full catalog snapshot
- Health checks at /livez, /readyz and /health
- Prometheus metrics at /metrics
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Host to bind to (overrides server.host)")
	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides server.port)")
	serveCmd.Flags().Bool("no-warm", false, "Skip building the catalog snapshot on start")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	noWarm, _ := cmd.Flags().GetBool("no-warm")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := openApp(ctx, cfg, logger, registry)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing database", slog.String("error", err.Error()))
		}
	}()

	a.housekeep(ctx, logger)

	if cfg.Catalog.WarmOnStart && !noWarm {
		snap, err := a.catalog.Warm(ctx)
		if err != nil {
			// The snapshot is rebuilt on first request, so a failed warm-up
			// only costs latency.
			logger.Warn("catalog warm-up failed", slog.String("error", err.Error()))
		} else {
			logger.Info("catalog warmed",
				slog.Int64("items", snap.TotalItems),
				slog.Int("pages", snap.Pages),
			)
		}
	}

	sched, err := newScheduler(a)
	if err != nil {
		return err
	}

	server := internalhttp.NewServer(internalhttp.ServerConfigFrom(cfg.Server), logger, version.Version,
		internalhttp.WithPrincipals(a.repos.Users),
		internalhttp.WithMetrics(registry),
	)
	api := server.API()
	handlers.NewHealthHandler(version.Version).WithDB(a.db.DB).Register(api)
	handlers.NewMediaHandler(a.catalog, cfg.Storage.MaxThumbnailSize.Bytes()).WithLogger(logger).Register(api)
	handlers.NewFeedbackHandler(a.catalog).WithLogger(logger).Register(api)
	handlers.NewCatalogHandler(a.catalog).WithLogger(logger).Register(api)
	handlers.NewWatchHandler(a.catalog).WithLogger(logger).Register(api)
	handlers.NewAdminHandler(a.catalog).WithJobs(sched).WithLogger(logger).Register(api)
	handlers.NewThumbnailHandler(a.thumbs).WithLogger(logger).RegisterFileServer(server.Router())

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	logger.Info("mediarr started",
		slog.String("version", version.String()),
		slog.String("address", cfg.Server.Address()),
	)

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

// newScheduler registers the maintenance jobs enabled in the configuration.
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler().WithLogger(logger)

	if expr := cfg.Cache.WatchRefreshCron; expr != "" {
		job := scheduler.RefreshWatchViews(a.catalog, observability.WithComponent(logger, "watch_refresh"))
		if err := sched.AddJob(scheduler.JobRefreshWatchViews, expr, job); err != nil {
			return nil, err
		}
	}

	if expr := cfg.Catalog.RebuildCron; expr != "" {
		warm := scheduler.SnapshotWarmerFunc(func(ctx context.Context) error {
			_, err := a.catalog.Warm(ctx)
			return err
		})
		if err := sched.AddJob(scheduler.JobRebuildSnapshot, expr, scheduler.RebuildSnapshot(warm)); err != nil {
			return nil, err
		}
	}

	return sched, nil
}
