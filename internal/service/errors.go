package service

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jmylchreest/mediarr/internal/models"
)

// upstream wraps a gateway failure. Errors that already carry a class are
// returned unchanged.
func upstream(op string, err error) error {
	if classified(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", models.ErrUpstream, op, err)
}

func classified(err error) bool {
	for _, class := range []error{
		models.ErrNotFound,
		models.ErrConflict,
		models.ErrInvalidInput,
		models.ErrForbidden,
		models.ErrUpstream,
		models.ErrBuildAborted,
	} {
		if errors.Is(err, class) {
			return true
		}
	}
	return false
}

// StatusCode maps an error class to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrBuildAborted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
