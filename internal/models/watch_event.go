package models

import "time"

// WatchEvent records that a user played a video. The (UserID, VideoID) pair
// is the primary key, so there is at most one event per pair; watching again
// moves LastWatchedAt forward instead of adding a row.
type WatchEvent struct {
	UserID  ULID `gorm:"primaryKey;type:varchar(26)" json:"user_id"`
	VideoID ULID `gorm:"primaryKey;type:varchar(26);index" json:"video_id"`

	// MediaID is the parent media of VideoID, copied at insert time so
	// per-media aggregates do not need a join.
	MediaID ULID `gorm:"type:varchar(26);not null;index" json:"media_id"`

	// Timestamp is the playback position in seconds.
	Timestamp int64 `gorm:"column:position_seconds;not null;default:0" json:"timestamp"`

	// LastWatchedAt is the instant of the most recent playback report.
	LastWatchedAt time.Time `gorm:"not null;index" json:"last_watched_at"`

	CreatedAt time.Time `json:"created_at"`

	Video *Video `gorm:"foreignKey:VideoID;references:ID" json:"video,omitempty"`
}

// TableName returns the table name for the WatchEvent model.
func (WatchEvent) TableName() string {
	return "watch_events"
}

// Validate checks the watch event fields.
func (w *WatchEvent) Validate() error {
	if w.UserID.IsZero() {
		return ErrUserIDRequired
	}
	if w.VideoID.IsZero() {
		return ErrVideoIDRequired
	}
	if w.Timestamp < 0 {
		return ErrInvalidPlaybackTimestamp
	}
	return nil
}

// MediaActivity is a user's most recent activity on one media title.
type MediaActivity struct {
	MediaID       ULID      `json:"media_id"`
	LastWatchedAt time.Time `json:"last_watched_at"`
}
