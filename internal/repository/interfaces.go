// Package repository defines the persistence gateway for mediarr.
// All database access goes through these interfaces so the cache, catalog
// and watch layers can be tested against in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/mediarr/internal/models"
)

// Lookups that miss return (nil, nil); callers decide whether that is an
// error. Paginated finders take a zero-based page and return the total row
// count for the unpaged query.

// MediaRepository defines operations for media persistence.
type MediaRepository interface {
	// Create inserts a media row with its videos and genre/actor links.
	Create(ctx context.Context, media *models.Media) error
	// GetByID retrieves a media with videos, genres and actors preloaded.
	GetByID(ctx context.Context, id models.ULID) (*models.Media, error)
	// GetByName retrieves a media by its unique name.
	GetByName(ctx context.Context, name string) (*models.Media, error)
	// GetByIDs retrieves media preloaded, in no particular order.
	GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.Media, error)
	// FindPage returns one page ordered by name, optionally filtered by a
	// case-insensitive substring of the name.
	FindPage(ctx context.Context, page, size int, search string) ([]*models.Media, int64, error)
	// FindBestRated returns media ordered by average rating descending.
	FindBestRated(ctx context.Context, page, size int) ([]*models.Media, int64, error)
	// FindMostWatched returns media ordered by distinct viewer count descending.
	FindMostWatched(ctx context.Context, page, size int) ([]*models.Media, int64, error)
	// FindLastWatched returns watched media ordered by latest activity descending.
	FindLastWatched(ctx context.Context, page, size int) ([]*models.Media, int64, error)
	// Update saves scalar media fields. Associations are left untouched.
	Update(ctx context.Context, media *models.Media) error
	// ReplaceGenres sets the genre links of a media.
	ReplaceGenres(ctx context.Context, mediaID models.ULID, genreIDs []models.ULID) error
	// ReplaceActors sets the actor links of a media.
	ReplaceActors(ctx context.Context, mediaID models.ULID, actorIDs []models.ULID) error
	// Delete removes a media and everything that hangs off it.
	Delete(ctx context.Context, id models.ULID) error
	// Count returns the number of media.
	Count(ctx context.Context) (int64, error)
}

// VideoRepository defines operations for video persistence.
type VideoRepository interface {
	// GetByID retrieves a video by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Video, error)
	// GetByMediaID retrieves the videos of a media in season/index order.
	GetByMediaID(ctx context.Context, mediaID models.ULID) ([]*models.Video, error)
	// UpdateOrder reassigns video positions within a media.
	UpdateOrder(ctx context.Context, mediaID models.ULID, order []models.VideoOrder) error
}

// GenreRepository defines operations for genre persistence.
type GenreRepository interface {
	Create(ctx context.Context, genre *models.Genre) error
	GetAll(ctx context.Context) ([]*models.Genre, error)
	// GetByIDs retrieves the genres that exist among ids.
	GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.Genre, error)
	GetByName(ctx context.Context, name string) (*models.Genre, error)
}

// ActorRepository defines operations for actor persistence.
type ActorRepository interface {
	Create(ctx context.Context, actor *models.Actor) error
	GetAll(ctx context.Context) ([]*models.Actor, error)
	// GetByIDs retrieves the actors that exist among ids.
	GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.Actor, error)
}

// UserRepository defines operations for user persistence.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id models.ULID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetAll(ctx context.Context) ([]*models.User, error)
}

// RatingRepository defines operations for rating persistence.
type RatingRepository interface {
	// Upsert creates or replaces the user's rating for a media.
	Upsert(ctx context.Context, rating *models.Rating) error
	// GetByUserAndMedia retrieves a user's rating for a media.
	GetByUserAndMedia(ctx context.Context, userID, mediaID models.ULID) (*models.Rating, error)
	// GetStats returns rating aggregates keyed by media ID. Media without
	// ratings are absent from the map.
	GetStats(ctx context.Context, mediaIDs []models.ULID) (map[models.ULID]models.RatingStats, error)
}

// ReviewRepository defines operations for review persistence.
type ReviewRepository interface {
	Create(ctx context.Context, review *models.Review) error
	GetByID(ctx context.Context, id models.ULID) (*models.Review, error)
	Update(ctx context.Context, review *models.Review) error
	Delete(ctx context.Context, id models.ULID) error
	// GetByMediaID returns one page of a media's reviews, newest first.
	GetByMediaID(ctx context.Context, mediaID models.ULID, page, size int) ([]*models.Review, int64, error)
}

// WatchEventRepository defines operations over the watch-event log.
type WatchEventRepository interface {
	// Upsert records a playback report. The (user, video) row is created
	// on first watch; afterwards the report with the later watchedAt wins.
	// Returns models.ErrNotFound when the video does not exist.
	Upsert(ctx context.Context, userID, videoID models.ULID, timestamp int64, watchedAt time.Time) (*models.WatchEvent, error)
	// GetByUserAndVideo retrieves the single event for a (user, video) pair.
	GetByUserAndVideo(ctx context.Context, userID, videoID models.ULID) (*models.WatchEvent, error)
	// FindByUser returns one page of a user's events ordered by
	// last_watched_at descending then video ID ascending, videos preloaded.
	FindByUser(ctx context.Context, userID models.ULID, page, size int) ([]*models.WatchEvent, int64, error)
	// CountDistinctViewersByMedia counts users with any event on the media.
	CountDistinctViewersByMedia(ctx context.Context, mediaID models.ULID) (int64, error)
	// CountDistinctViewers is the batched form of CountDistinctViewersByMedia.
	CountDistinctViewers(ctx context.Context, mediaIDs []models.ULID) (map[models.ULID]int64, error)
	// FindDistinctMediaTouchedByUser returns one entry per media the user
	// has any event on, carrying the latest last_watched_at among them.
	FindDistinctMediaTouchedByUser(ctx context.Context, userID models.ULID) ([]models.MediaActivity, error)
}
