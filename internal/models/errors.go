package models

import (
	"errors"
	"fmt"
)

// Error classes shared by the repository, catalog and service layers.
// Callers match them with errors.Is; specific errors wrap one of these.
var (
	// ErrNotFound indicates an unknown media, video, user, review or genre id.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a duplicate name or an invalid reference set.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates malformed request parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrForbidden indicates the caller lacks the capability for an action.
	ErrForbidden = errors.New("forbidden")

	// ErrUpstream indicates a persistence gateway call failed.
	ErrUpstream = errors.New("upstream failure")

	// ErrBuildAborted indicates a catalog snapshot could not be completed.
	ErrBuildAborted = errors.New("snapshot build aborted")
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Is reports ErrValidation as a member of the ErrInvalidInput class.
func (e ErrValidation) Is(target error) bool {
	return target == ErrInvalidInput
}

// Common validation errors for models.
var (
	// ErrNameRequired indicates a required name field is empty.
	ErrNameRequired = ErrValidation{Field: "name", Message: "name is required"}

	// ErrInvalidMediaType indicates an unknown media type.
	ErrInvalidMediaType = ErrValidation{Field: "type", Message: "must be 'movie' or 'series'"}

	// ErrInvalidYear indicates a release year outside the accepted range.
	ErrInvalidYear = ErrValidation{Field: "year", Message: "must be between 1870 and 9999"}

	// ErrMediaIDRequired indicates a required media ID field is zero.
	ErrMediaIDRequired = ErrValidation{Field: "media_id", Message: "media_id is required"}

	// ErrVideoIDRequired indicates a required video ID field is zero.
	ErrVideoIDRequired = ErrValidation{Field: "video_id", Message: "video_id is required"}

	// ErrUserIDRequired indicates a required user ID field is zero.
	ErrUserIDRequired = ErrValidation{Field: "user_id", Message: "user_id is required"}

	// ErrInvalidDuration indicates a negative video duration.
	ErrInvalidDuration = ErrValidation{Field: "duration_seconds", Message: "must be non-negative"}

	// ErrInvalidPlaybackTimestamp indicates a negative playback position.
	ErrInvalidPlaybackTimestamp = ErrValidation{Field: "timestamp", Message: "must be non-negative"}

	// ErrInvalidScore indicates a rating score outside 1..10.
	ErrInvalidScore = ErrValidation{Field: "score", Message: "must be between 1 and 10"}

	// ErrReviewTitleRequired indicates a review without a title.
	ErrReviewTitleRequired = ErrValidation{Field: "title", Message: "title is required"}

	// ErrUsernameRequired indicates a user without a username.
	ErrUsernameRequired = ErrValidation{Field: "username", Message: "username is required"}
)
