package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/mediarr/internal/http/middleware"
	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/jmylchreest/mediarr/internal/observability"
	"github.com/jmylchreest/mediarr/internal/service"
)

// WatchPath is the playback report endpoint. The server rate limits it.
const WatchPath = "/api/v1/watch"

// WatchHandler handles playback reports and per-user watch history.
type WatchHandler struct {
	catalog *service.CatalogService
	logger  *slog.Logger
}

// NewWatchHandler creates a new watch handler.
func NewWatchHandler(catalog *service.CatalogService) *WatchHandler {
	return &WatchHandler{catalog: catalog, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (h *WatchHandler) WithLogger(logger *slog.Logger) *WatchHandler {
	h.logger = observability.WithComponent(logger, "watch_handler")
	return h
}

// Register registers the watch routes with the API.
func (h *WatchHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "recordWatch",
		Method:      "POST",
		Path:        WatchPath,
		Summary:     "Report playback",
		Description: "Records the caller's playback position in a video",
		Tags:        []string{"Watch"},
	}, h.RecordWatch)

	huma.Register(api, huma.Operation{
		OperationID: "listUserLastWatched",
		Method:      "GET",
		Path:        "/api/v1/users/{id}/last-watched",
		Summary:     "Watch history",
		Description: "Returns the user's watched videos, most recent first",
		Tags:        []string{"Watch"},
	}, h.LastWatched)

	huma.Register(api, huma.Operation{
		OperationID: "listContinueWatching",
		Method:      "GET",
		Path:        "/api/v1/users/{id}/continue-watching",
		Summary:     "Continue watching",
		Description: "Returns the media the user has started, most recent first",
		Tags:        []string{"Watch"},
	}, h.ContinueWatching)

	huma.Register(api, huma.Operation{
		OperationID: "getUnwatchedCount",
		Method:      "GET",
		Path:        "/api/v1/users/{id}/unwatched-count",
		Summary:     "Unwatched count",
		Description: "Returns how many media the user has never watched",
		Tags:        []string{"Watch"},
	}, h.UnwatchedCount)
}

// RecordWatchInput is a playback report.
type RecordWatchInput struct {
	Body struct {
		VideoID   string `json:"video_id" doc:"Video ID (ULID)"`
		Timestamp int64  `json:"timestamp" doc:"Playback position in seconds"`
	}
}

// WatchEventOutput is a stored watch event.
type WatchEventOutput struct {
	Body *models.WatchEvent
}

// RecordWatch stores a playback report for the caller.
func (h *WatchHandler) RecordWatch(ctx context.Context, input *RecordWatchInput) (*WatchEventOutput, error) {
	videoID, err := parseID("video id", input.Body.VideoID)
	if err != nil {
		return nil, err
	}
	event, err := h.catalog.RecordWatch(ctx, middleware.PrincipalFromContext(ctx), videoID, input.Body.Timestamp)
	if err != nil {
		return nil, apiError(ctx, h.logger, "recording watch", err)
	}
	return &WatchEventOutput{Body: event}, nil
}

// UserHistoryInput is the input for a user's watch history.
type UserHistoryInput struct {
	ID string `path:"id" doc:"User ID (ULID)"`
	PageQuery
}

// WatchHistoryOutput is a page of watch entries.
type WatchHistoryOutput struct {
	Body *models.Page[models.WatchEntry]
}

// LastWatched returns one page of a user's watch history.
func (h *WatchHandler) LastWatched(ctx context.Context, input *UserHistoryInput) (*WatchHistoryOutput, error) {
	id, err := parseID("user id", input.ID)
	if err != nil {
		return nil, err
	}
	page, err := h.catalog.UserLastWatched(ctx, id, input.Page, input.Size)
	if err != nil {
		return nil, apiError(ctx, h.logger, "listing watch history", err)
	}
	return &WatchHistoryOutput{Body: page}, nil
}

// UserIDInput identifies one user.
type UserIDInput struct {
	ID string `path:"id" doc:"User ID (ULID)"`
}

// ContinueWatchingOutput lists started media.
type ContinueWatchingOutput struct {
	Body struct {
		Items []models.MediaActivity `json:"items"`
	}
}

// ContinueWatching returns the media a user has started.
func (h *WatchHandler) ContinueWatching(ctx context.Context, input *UserIDInput) (*ContinueWatchingOutput, error) {
	id, err := parseID("user id", input.ID)
	if err != nil {
		return nil, err
	}
	items, err := h.catalog.ContinueWatching(ctx, id)
	if err != nil {
		return nil, apiError(ctx, h.logger, "listing continue watching", err)
	}
	if items == nil {
		items = []models.MediaActivity{}
	}
	out := &ContinueWatchingOutput{}
	out.Body.Items = items
	return out, nil
}

// UnwatchedCountOutput is the number of media a user has not watched.
type UnwatchedCountOutput struct {
	Body struct {
		Count int64 `json:"count"`
	}
}

// UnwatchedCount returns how many media a user has never watched.
func (h *WatchHandler) UnwatchedCount(ctx context.Context, input *UserIDInput) (*UnwatchedCountOutput, error) {
	id, err := parseID("user id", input.ID)
	if err != nil {
		return nil, err
	}
	count, err := h.catalog.UnwatchedCount(ctx, id)
	if err != nil {
		return nil, apiError(ctx, h.logger, "counting unwatched media", err)
	}
	out := &UnwatchedCountOutput{}
	out.Body.Count = count
	return out, nil
}
