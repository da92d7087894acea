// Package handlers provides HTTP API handlers for mediarr.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/jmylchreest/mediarr/internal/observability"
	"github.com/jmylchreest/mediarr/internal/service"
)

// apiError converts a service error into a huma status error. Server-side
// failures are logged and reported without their cause.
func apiError(ctx context.Context, logger *slog.Logger, op string, err error) error {
	status := service.StatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, op+" failed",
			slog.String("error", err.Error()),
			slog.String("request_id", observability.RequestIDFromContext(ctx)),
		)
		if status == http.StatusServiceUnavailable {
			return huma.Error503ServiceUnavailable("catalog snapshot is being rebuilt, retry shortly")
		}
		return huma.Error500InternalServerError(op + " failed")
	}

	var verr models.ErrValidation
	if errors.As(err, &verr) {
		return huma.Error400BadRequest(verr.Message, &huma.ErrorDetail{
			Message:  verr.Message,
			Location: verr.Field,
		})
	}
	return huma.NewError(status, err.Error())
}

// parseID parses a ULID path or body parameter.
func parseID(field, raw string) (models.ULID, error) {
	id, err := models.ParseULID(raw)
	if err != nil {
		return models.ULID{}, huma.Error400BadRequest("invalid "+field+" format", err)
	}
	return id, nil
}

// PageQuery is the shared pagination input. Page is zero-based; a zero
// size selects the server default.
type PageQuery struct {
	Page int `query:"page" default:"0" doc:"Zero-based page number"`
	Size int `query:"size" default:"0" doc:"Page size, 0 for the server default"`
}
