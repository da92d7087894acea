package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/mediarr/internal/http/middleware"
	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/jmylchreest/mediarr/internal/observability"
	"github.com/jmylchreest/mediarr/internal/service"
)

// Multipart field names for media uploads.
const (
	formMetadata  = "metadata"
	formThumbnail = "thumbnail"
)

// multipartOverhead is added to the thumbnail limit to leave room for the
// metadata field and part headers.
const multipartOverhead = 64 * 1024

// MediaHandler handles media catalog endpoints.
type MediaHandler struct {
	catalog   *service.CatalogService
	maxUpload int64
	logger    *slog.Logger
}

// NewMediaHandler creates a new media handler.
func NewMediaHandler(catalog *service.CatalogService, maxThumbnailSize int64) *MediaHandler {
	return &MediaHandler{
		catalog:   catalog,
		maxUpload: maxThumbnailSize + multipartOverhead,
		logger:    slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (h *MediaHandler) WithLogger(logger *slog.Logger) *MediaHandler {
	h.logger = observability.WithComponent(logger, "media_handler")
	return h
}

// Register registers the media routes with the API.
func (h *MediaHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listMedia",
		Method:      "GET",
		Path:        "/api/v1/media",
		Summary:     "List media",
		Description: "Returns a page of media ordered by name, optionally filtered by name",
		Tags:        []string{"Media"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getMedia",
		Method:      "GET",
		Path:        "/api/v1/media/{id}",
		Summary:     "Get media",
		Description: "Returns the full view of a media title",
		Tags:        []string{"Media"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID:      "createMedia",
		Method:           "POST",
		Path:             "/api/v1/media",
		Summary:          "Create media",
		Description:      "Creates a media title from a multipart form with a JSON metadata field and a thumbnail file",
		Tags:             []string{"Media"},
		DefaultStatus:    http.StatusCreated,
		MaxBodyBytes:     h.maxUpload,
		RequestBody:      &huma.RequestBody{Content: map[string]*huma.MediaType{"multipart/form-data": {}}},
		SkipValidateBody: true,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "updateMedia",
		Method:      "PATCH",
		Path:        "/api/v1/media/{id}",
		Summary:     "Update media",
		Description: "Applies a partial update. Omitted fields are left unchanged",
		Tags:        []string{"Media"},
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID:      "replaceMediaThumbnail",
		Method:           "PUT",
		Path:             "/api/v1/media/{id}/thumbnail",
		Summary:          "Replace thumbnail",
		Description:      "Replaces the thumbnail of a media title",
		Tags:             []string{"Media"},
		MaxBodyBytes:     h.maxUpload,
		RequestBody:      &huma.RequestBody{Content: map[string]*huma.MediaType{"multipart/form-data": {}}},
		SkipValidateBody: true,
	}, h.ReplaceThumbnail)

	huma.Register(api, huma.Operation{
		OperationID:   "deleteMedia",
		Method:        "DELETE",
		Path:          "/api/v1/media/{id}",
		Summary:       "Delete media",
		Description:   "Deletes a media title with its videos, ratings, reviews and watch history",
		Tags:          []string{"Media"},
		DefaultStatus: http.StatusNoContent,
	}, h.Delete)
}

// ListMediaInput is the input for listing media.
type ListMediaInput struct {
	PageQuery
	Search   string `query:"search" doc:"Case-insensitive name filter"`
	Complete bool   `query:"complete" default:"false" doc:"Include plot, trailer, genres, actors and videos"`
}

// MediaPageOutput is a page of media summaries.
type MediaPageOutput struct {
	Body *models.Page[models.MediaSummary]
}

// List returns one page of the media listing.
func (h *MediaHandler) List(ctx context.Context, input *ListMediaInput) (*MediaPageOutput, error) {
	page, err := h.catalog.ListMedia(ctx, service.ListQuery{
		Page:     input.Page,
		Size:     input.Size,
		Search:   input.Search,
		Complete: input.Complete,
	})
	if err != nil {
		return nil, apiError(ctx, h.logger, "listing media", err)
	}
	return &MediaPageOutput{Body: page}, nil
}

// MediaIDInput identifies one media.
type MediaIDInput struct {
	ID string `path:"id" doc:"Media ID (ULID)"`
}

// MediaOutput is a single media summary.
type MediaOutput struct {
	Body *models.MediaSummary
}

// Get returns one media.
func (h *MediaHandler) Get(ctx context.Context, input *MediaIDInput) (*MediaOutput, error) {
	id, err := parseID("media id", input.ID)
	if err != nil {
		return nil, err
	}
	media, err := h.catalog.GetMedia(ctx, id)
	if err != nil {
		return nil, apiError(ctx, h.logger, "getting media", err)
	}
	return &MediaOutput{Body: media}, nil
}

// VideoRequest describes one video of a new media.
type VideoRequest struct {
	Name            string `json:"name,omitempty"`
	Season          int    `json:"season,omitempty"`
	Index           int    `json:"index,omitempty"`
	DurationSeconds int64  `json:"duration_seconds,omitempty"`
}

// CreateMediaRequest is the JSON carried in the metadata form field.
type CreateMediaRequest struct {
	Name     string           `json:"name"`
	Type     models.MediaType `json:"type,omitempty"`
	Year     int              `json:"year,omitempty"`
	Plot     string           `json:"plot,omitempty"`
	Trailer  string           `json:"trailer,omitempty"`
	GenreIDs []models.ULID    `json:"genre_ids,omitempty"`
	ActorIDs []models.ULID    `json:"actor_ids,omitempty"`
	Videos   []VideoRequest   `json:"videos,omitempty"`
}

// CreateMediaInput is the multipart input for creating media.
type CreateMediaInput struct {
	RawBody multipart.Form
}

// Create stores a new media title and its thumbnail.
func (h *MediaHandler) Create(ctx context.Context, input *CreateMediaInput) (*MediaOutput, error) {
	values := input.RawBody.Value[formMetadata]
	if len(values) == 0 || values[0] == "" {
		return nil, huma.Error400BadRequest("metadata field is required")
	}
	var req CreateMediaRequest
	if err := json.Unmarshal([]byte(values[0]), &req); err != nil {
		return nil, huma.Error400BadRequest("invalid metadata", err)
	}

	in := service.CreateMediaInput{
		Name:     req.Name,
		Type:     req.Type,
		Year:     req.Year,
		Plot:     req.Plot,
		Trailer:  req.Trailer,
		GenreIDs: req.GenreIDs,
		ActorIDs: req.ActorIDs,
	}
	for _, v := range req.Videos {
		in.Videos = append(in.Videos, models.Video{
			Name:            v.Name,
			Season:          v.Season,
			Index:           v.Index,
			DurationSeconds: v.DurationSeconds,
		})
	}

	// A missing file is left for the service to reject so the error
	// matches the one produced for other callers.
	if files := input.RawBody.File[formThumbnail]; len(files) > 0 {
		file, err := files[0].Open()
		if err != nil {
			return nil, huma.Error400BadRequest("failed to open uploaded thumbnail")
		}
		defer file.Close()
		in.ThumbnailFilename = files[0].Filename
		in.Thumbnail = file
	}

	media, err := h.catalog.CreateMedia(ctx, middleware.PrincipalFromContext(ctx), in)
	if err != nil {
		return nil, apiError(ctx, h.logger, "creating media", err)
	}
	return &MediaOutput{Body: media}, nil
}

// UpdateMediaRequest is a partial media update.
type UpdateMediaRequest struct {
	Type       *models.MediaType   `json:"type,omitempty" enum:"movie,series"`
	Year       *int                `json:"year,omitempty"`
	Plot       *string             `json:"plot,omitempty"`
	Trailer    *string             `json:"trailer,omitempty"`
	GenreIDs   []models.ULID       `json:"genre_ids,omitempty" doc:"Replaces the genre links; an empty list clears them"`
	ActorIDs   []models.ULID       `json:"actor_ids,omitempty" doc:"Replaces the actor links; an empty list clears them"`
	VideoOrder []models.VideoOrder `json:"video_order,omitempty" doc:"New positions for videos of this media"`
}

// UpdateMediaInput is the input for updating media.
type UpdateMediaInput struct {
	ID   string `path:"id" doc:"Media ID (ULID)"`
	Body UpdateMediaRequest
}

// Update applies a partial update to a media.
func (h *MediaHandler) Update(ctx context.Context, input *UpdateMediaInput) (*MediaOutput, error) {
	id, err := parseID("media id", input.ID)
	if err != nil {
		return nil, err
	}
	media, err := h.catalog.UpdateMedia(ctx, middleware.PrincipalFromContext(ctx), id, service.UpdateMediaInput{
		Type:       input.Body.Type,
		Year:       input.Body.Year,
		Plot:       input.Body.Plot,
		Trailer:    input.Body.Trailer,
		GenreIDs:   input.Body.GenreIDs,
		ActorIDs:   input.Body.ActorIDs,
		VideoOrder: input.Body.VideoOrder,
	})
	if err != nil {
		return nil, apiError(ctx, h.logger, "updating media", err)
	}
	return &MediaOutput{Body: media}, nil
}

// ReplaceThumbnailInput is the multipart input for replacing a thumbnail.
type ReplaceThumbnailInput struct {
	ID      string `path:"id" doc:"Media ID (ULID)"`
	RawBody multipart.Form
}

// ReplaceThumbnail stores a new thumbnail for a media.
func (h *MediaHandler) ReplaceThumbnail(ctx context.Context, input *ReplaceThumbnailInput) (*MediaOutput, error) {
	id, err := parseID("media id", input.ID)
	if err != nil {
		return nil, err
	}
	files := input.RawBody.File[formThumbnail]
	if len(files) == 0 {
		return nil, huma.Error400BadRequest("thumbnail file is required")
	}
	file, err := files[0].Open()
	if err != nil {
		return nil, huma.Error400BadRequest("failed to open uploaded thumbnail")
	}
	defer file.Close()

	media, err := h.catalog.UpdateMedia(ctx, middleware.PrincipalFromContext(ctx), id, service.UpdateMediaInput{
		ThumbnailFilename: files[0].Filename,
		Thumbnail:         file,
	})
	if err != nil {
		return nil, apiError(ctx, h.logger, "replacing thumbnail", err)
	}
	return &MediaOutput{Body: media}, nil
}

// Delete removes a media.
func (h *MediaHandler) Delete(ctx context.Context, input *MediaIDInput) (*struct{}, error) {
	id, err := parseID("media id", input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.catalog.DeleteMedia(ctx, middleware.PrincipalFromContext(ctx), id); err != nil {
		return nil, apiError(ctx, h.logger, "deleting media", err)
	}
	return nil, nil
}
