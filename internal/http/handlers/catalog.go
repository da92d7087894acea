package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/mediarr/internal/catalog"
	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/jmylchreest/mediarr/internal/observability"
	"github.com/jmylchreest/mediarr/internal/service"
)

// CatalogHandler serves the full catalog snapshot and the ranked listings.
type CatalogHandler struct {
	catalog *service.CatalogService
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (h *CatalogHandler) WithLogger(logger *slog.Logger) *CatalogHandler {
	h.logger = observability.WithComponent(logger, "catalog_handler")
	return h
}

// Register registers the catalog routes with the API.
func (h *CatalogHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getCatalog",
		Method:      "GET",
		Path:        "/api/v1/catalog",
		Summary:     "Full catalog",
		Description: "Returns every media in one snapshot, building it if none is current",
		Tags:        []string{"Catalog"},
	}, h.GetCatalog)

	huma.Register(api, huma.Operation{
		OperationID: "listBestRated",
		Method:      "GET",
		Path:        "/api/v1/rankings/best-rated",
		Summary:     "Best rated media",
		Description: "Returns media ordered by average rating",
		Tags:        []string{"Catalog"},
	}, h.BestRated)

	huma.Register(api, huma.Operation{
		OperationID: "listMostWatched",
		Method:      "GET",
		Path:        "/api/v1/rankings/most-watched",
		Summary:     "Most watched media",
		Description: "Returns media ordered by unique viewers. Refreshed periodically",
		Tags:        []string{"Catalog"},
	}, h.MostWatched)

	huma.Register(api, huma.Operation{
		OperationID: "listLastWatched",
		Method:      "GET",
		Path:        "/api/v1/rankings/last-watched",
		Summary:     "Recently watched media",
		Description: "Returns watched media ordered by latest activity. Refreshed periodically",
		Tags:        []string{"Catalog"},
	}, h.LastWatched)
}

// GetCatalogInput is the input for the catalog snapshot.
type GetCatalogInput struct{}

// CatalogOutput is a catalog snapshot.
type CatalogOutput struct {
	Body *catalog.Snapshot
}

// GetCatalog returns the current snapshot.
func (h *CatalogHandler) GetCatalog(ctx context.Context, _ *GetCatalogInput) (*CatalogOutput, error) {
	snap, err := h.catalog.AllMedia(ctx)
	if err != nil {
		return nil, apiError(ctx, h.logger, "building catalog", err)
	}
	return &CatalogOutput{Body: snap}, nil
}

// RankingInput is the input for the ranked listings.
type RankingInput struct {
	PageQuery
}

type rankingFunc func(ctx context.Context, page, size int) (*models.Page[models.MediaSummary], error)

func (h *CatalogHandler) ranking(ctx context.Context, op string, input *RankingInput, fn rankingFunc) (*MediaPageOutput, error) {
	page, err := fn(ctx, input.Page, input.Size)
	if err != nil {
		return nil, apiError(ctx, h.logger, op, err)
	}
	return &MediaPageOutput{Body: page}, nil
}

// BestRated returns one page of the best-rated ranking.
func (h *CatalogHandler) BestRated(ctx context.Context, input *RankingInput) (*MediaPageOutput, error) {
	return h.ranking(ctx, "listing best rated", input, h.catalog.BestRated)
}

// MostWatched returns one page of the most-watched ranking.
func (h *CatalogHandler) MostWatched(ctx context.Context, input *RankingInput) (*MediaPageOutput, error) {
	return h.ranking(ctx, "listing most watched", input, h.catalog.MostWatched)
}

// LastWatched returns one page of the recently watched ranking.
func (h *CatalogHandler) LastWatched(ctx context.Context, input *RankingInput) (*MediaPageOutput, error) {
	return h.ranking(ctx, "listing last watched", input, h.catalog.LastWatchedMedia)
}
