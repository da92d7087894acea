package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/mediarr/internal/http/middleware"
	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/jmylchreest/mediarr/internal/observability"
	"github.com/jmylchreest/mediarr/internal/service"
)

// FeedbackHandler handles rating and review endpoints.
type FeedbackHandler struct {
	catalog *service.CatalogService
	logger  *slog.Logger
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(catalog *service.CatalogService) *FeedbackHandler {
	return &FeedbackHandler{catalog: catalog, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (h *FeedbackHandler) WithLogger(logger *slog.Logger) *FeedbackHandler {
	h.logger = observability.WithComponent(logger, "feedback_handler")
	return h
}

// Register registers the rating and review routes with the API.
func (h *FeedbackHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "postRating",
		Method:      "POST",
		Path:        "/api/v1/media/{id}/ratings",
		Summary:     "Rate media",
		Description: "Creates or replaces the caller's rating of a media",
		Tags:        []string{"Feedback"},
	}, h.PostRating)

	huma.Register(api, huma.Operation{
		OperationID: "listReviews",
		Method:      "GET",
		Path:        "/api/v1/media/{id}/reviews",
		Summary:     "List reviews",
		Description: "Returns a page of reviews of a media, newest first",
		Tags:        []string{"Feedback"},
	}, h.ListReviews)

	huma.Register(api, huma.Operation{
		OperationID:   "postReview",
		Method:        "POST",
		Path:          "/api/v1/media/{id}/reviews",
		Summary:       "Review media",
		Description:   "Publishes a review. Requires the CRITIC or ADMIN role",
		Tags:          []string{"Feedback"},
		DefaultStatus: http.StatusCreated,
	}, h.PostReview)

	huma.Register(api, huma.Operation{
		OperationID: "updateReview",
		Method:      "PATCH",
		Path:        "/api/v1/reviews/{id}",
		Summary:     "Update review",
		Description: "Edits a review. Only the author may edit",
		Tags:        []string{"Feedback"},
	}, h.UpdateReview)

	huma.Register(api, huma.Operation{
		OperationID:   "deleteReview",
		Method:        "DELETE",
		Path:          "/api/v1/reviews/{id}",
		Summary:       "Delete review",
		Description:   "Deletes a review. Allowed for the author and for administrators",
		Tags:          []string{"Feedback"},
		DefaultStatus: http.StatusNoContent,
	}, h.DeleteReview)
}

// PostRatingInput is the input for rating a media.
type PostRatingInput struct {
	ID   string `path:"id" doc:"Media ID (ULID)"`
	Body struct {
		Score int `json:"score" doc:"Score from 1 to 10"`
	}
}

// RatingOutput is a stored rating.
type RatingOutput struct {
	Body *models.Rating
}

// PostRating stores the caller's rating.
func (h *FeedbackHandler) PostRating(ctx context.Context, input *PostRatingInput) (*RatingOutput, error) {
	id, err := parseID("media id", input.ID)
	if err != nil {
		return nil, err
	}
	rating, err := h.catalog.PostRating(ctx, middleware.PrincipalFromContext(ctx), id, input.Body.Score)
	if err != nil {
		return nil, apiError(ctx, h.logger, "posting rating", err)
	}
	return &RatingOutput{Body: rating}, nil
}

// ListReviewsInput is the input for listing reviews.
type ListReviewsInput struct {
	ID string `path:"id" doc:"Media ID (ULID)"`
	PageQuery
}

// ReviewPageOutput is a page of reviews.
type ReviewPageOutput struct {
	Body *models.Page[*models.Review]
}

// ListReviews returns one page of a media's reviews.
func (h *FeedbackHandler) ListReviews(ctx context.Context, input *ListReviewsInput) (*ReviewPageOutput, error) {
	id, err := parseID("media id", input.ID)
	if err != nil {
		return nil, err
	}
	page, err := h.catalog.ListReviews(ctx, id, input.Page, input.Size)
	if err != nil {
		return nil, apiError(ctx, h.logger, "listing reviews", err)
	}
	return &ReviewPageOutput{Body: page}, nil
}

// PostReviewInput is the input for writing a review.
type PostReviewInput struct {
	ID   string `path:"id" doc:"Media ID (ULID)"`
	Body struct {
		Title   string `json:"title"`
		Comment string `json:"comment,omitempty"`
	}
}

// ReviewOutput is a stored review.
type ReviewOutput struct {
	Body *models.Review
}

// PostReview publishes a review.
func (h *FeedbackHandler) PostReview(ctx context.Context, input *PostReviewInput) (*ReviewOutput, error) {
	id, err := parseID("media id", input.ID)
	if err != nil {
		return nil, err
	}
	review, err := h.catalog.PostReview(ctx, middleware.PrincipalFromContext(ctx), id, service.ReviewInput{
		Title:   input.Body.Title,
		Comment: input.Body.Comment,
	})
	if err != nil {
		return nil, apiError(ctx, h.logger, "posting review", err)
	}
	return &ReviewOutput{Body: review}, nil
}

// UpdateReviewInput is the input for editing a review.
type UpdateReviewInput struct {
	ID   string `path:"id" doc:"Review ID (ULID)"`
	Body struct {
		Title   *string `json:"title,omitempty"`
		Comment *string `json:"comment,omitempty"`
	}
}

// UpdateReview edits a review.
func (h *FeedbackHandler) UpdateReview(ctx context.Context, input *UpdateReviewInput) (*ReviewOutput, error) {
	id, err := parseID("review id", input.ID)
	if err != nil {
		return nil, err
	}
	review, err := h.catalog.UpdateReview(ctx, middleware.PrincipalFromContext(ctx), id, service.ReviewPatch{
		Title:   input.Body.Title,
		Comment: input.Body.Comment,
	})
	if err != nil {
		return nil, apiError(ctx, h.logger, "updating review", err)
	}
	return &ReviewOutput{Body: review}, nil
}

// ReviewIDInput identifies one review.
type ReviewIDInput struct {
	ID string `path:"id" doc:"Review ID (ULID)"`
}

// DeleteReview removes a review.
func (h *FeedbackHandler) DeleteReview(ctx context.Context, input *ReviewIDInput) (*struct{}, error) {
	id, err := parseID("review id", input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.catalog.DeleteReview(ctx, middleware.PrincipalFromContext(ctx), id); err != nil {
		return nil, apiError(ctx, h.logger, "deleting review", err)
	}
	return nil, nil
}
