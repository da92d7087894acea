package models

import "strings"

// Rating score bounds.
const (
	MinRatingScore = 1
	MaxRatingScore = 10
)

// Rating is one user's score for a media title. A user holds at most one
// rating per media; posting again replaces the score.
type Rating struct {
	BaseModel
	UserID  ULID `gorm:"type:varchar(26);not null;uniqueIndex:idx_rating_user_media" json:"user_id"`
	MediaID ULID `gorm:"type:varchar(26);not null;uniqueIndex:idx_rating_user_media;index" json:"media_id"`
	Score   int  `gorm:"not null" json:"score"`
}

// TableName returns the table name for the Rating model.
func (Rating) TableName() string {
	return "ratings"
}

// Validate checks the rating fields.
func (r *Rating) Validate() error {
	if r.UserID.IsZero() {
		return ErrUserIDRequired
	}
	if r.MediaID.IsZero() {
		return ErrMediaIDRequired
	}
	if r.Score < MinRatingScore || r.Score > MaxRatingScore {
		return ErrInvalidScore
	}
	return nil
}

// Review is a critic's written review of a media title.
type Review struct {
	BaseModel
	UserID  ULID   `gorm:"type:varchar(26);not null;index" json:"user_id"`
	MediaID ULID   `gorm:"type:varchar(26);not null;index" json:"media_id"`
	Title   string `gorm:"size:255;not null" json:"title"`
	Comment string `gorm:"type:text" json:"comment"`
}

// TableName returns the table name for the Review model.
func (Review) TableName() string {
	return "reviews"
}

// Validate checks the review fields.
func (r *Review) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return ErrReviewTitleRequired
	}
	if r.UserID.IsZero() {
		return ErrUserIDRequired
	}
	if r.MediaID.IsZero() {
		return ErrMediaIDRequired
	}
	return nil
}
