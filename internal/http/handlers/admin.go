package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/mediarr/internal/cache"
	"github.com/jmylchreest/mediarr/internal/http/middleware"
	"github.com/jmylchreest/mediarr/internal/observability"
	"github.com/jmylchreest/mediarr/internal/scheduler"
	"github.com/jmylchreest/mediarr/internal/service"
)

// JobLister reports scheduled maintenance jobs.
type JobLister interface {
	Jobs() []scheduler.JobStatus
}

// AdminHandler exposes cache and scheduler maintenance endpoints.
type AdminHandler struct {
	catalog *service.CatalogService
	jobs    JobLister
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(catalog *service.CatalogService) *AdminHandler {
	return &AdminHandler{catalog: catalog, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (h *AdminHandler) WithLogger(logger *slog.Logger) *AdminHandler {
	h.logger = observability.WithComponent(logger, "admin_handler")
	return h
}

// WithJobs sets the scheduler whose jobs are reported.
func (h *AdminHandler) WithJobs(jobs JobLister) *AdminHandler {
	h.jobs = jobs
	return h
}

// Register registers the admin routes with the API.
func (h *AdminHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getCacheStats",
		Method:      "GET",
		Path:        "/api/v1/cache/stats",
		Summary:     "Cache statistics",
		Description: "Returns entry counts, hits, misses and evictions per cache region",
		Tags:        []string{"Admin"},
	}, h.CacheStats)

	huma.Register(api, huma.Operation{
		OperationID:   "refreshWatchViews",
		Method:        "POST",
		Path:          "/api/v1/cache/refresh-watch-views",
		Summary:       "Refresh watch rankings",
		Description:   "Flushes the most-watched and last-watched rankings now. Requires ADMIN",
		Tags:          []string{"Admin"},
		DefaultStatus: http.StatusNoContent,
	}, h.RefreshWatchViews)

	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      "GET",
		Path:        "/api/v1/jobs",
		Summary:     "Scheduled jobs",
		Description: "Returns the maintenance jobs with their schedules and last results",
		Tags:        []string{"Admin"},
	}, h.ListJobs)
}

// CacheStatsInput is the input for cache statistics.
type CacheStatsInput struct{}

// CacheStatsOutput lists per-region statistics.
type CacheStatsOutput struct {
	Body struct {
		Regions []cache.Stats `json:"regions"`
	}
}

// CacheStats returns statistics for every cache region.
func (h *AdminHandler) CacheStats(_ context.Context, _ *CacheStatsInput) (*CacheStatsOutput, error) {
	out := &CacheStatsOutput{}
	out.Body.Regions = h.catalog.Cache().AllStats()
	return out, nil
}

// RefreshWatchViewsInput is the input for refreshing watch rankings.
type RefreshWatchViewsInput struct{}

// RefreshWatchViews flushes the watch-derived rankings.
func (h *AdminHandler) RefreshWatchViews(ctx context.Context, _ *RefreshWatchViewsInput) (*struct{}, error) {
	if err := h.catalog.RefreshWatchViews(ctx, middleware.PrincipalFromContext(ctx)); err != nil {
		return nil, apiError(ctx, h.logger, "refreshing watch views", err)
	}
	return nil, nil
}

// ListJobsInput is the input for listing jobs.
type ListJobsInput struct{}

// ListJobsOutput lists scheduled jobs.
type ListJobsOutput struct {
	Body struct {
		Jobs []scheduler.JobStatus `json:"jobs"`
	}
}

// ListJobs returns the scheduled jobs.
func (h *AdminHandler) ListJobs(_ context.Context, _ *ListJobsInput) (*ListJobsOutput, error) {
	out := &ListJobsOutput{}
	out.Body.Jobs = []scheduler.JobStatus{}
	if h.jobs != nil {
		out.Body.Jobs = h.jobs.Jobs()
	}
	return out, nil
}
