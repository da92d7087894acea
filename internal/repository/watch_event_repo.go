package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmylchreest/mediarr/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// watchEventRepository implements WatchEventRepository using GORM.
type watchEventRepository struct {
	db *gorm.DB
}

// NewWatchEventRepository creates a new WatchEventRepository.
func NewWatchEventRepository(db *gorm.DB) WatchEventRepository {
	return &watchEventRepository{db: db}
}

// excludedColumn references the incoming row inside an upsert's update list.
func excludedColumn(db *gorm.DB, column string) string {
	if db.Dialector.Name() == "mysql" {
		return "VALUES(" + column + ")"
	}
	return "excluded." + column
}

// Upsert records a playback report. On conflict the report with the later
// (or equal) watchedAt replaces the stored position; an older report is a
// no-op. The position is assigned before last_watched_at because MySQL
// evaluates the update list left to right against the already-updated row.
func (r *watchEventRepository) Upsert(ctx context.Context, userID, videoID models.ULID, timestamp int64, watchedAt time.Time) (*models.WatchEvent, error) {
	event := &models.WatchEvent{
		UserID:        userID,
		VideoID:       videoID,
		Timestamp:     timestamp,
		LastWatchedAt: watchedAt.UTC().Truncate(time.Microsecond),
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("validating watch event: %w", err)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var video models.Video
		if err := tx.Select("id", "media_id").First(&video, "id = ?", videoID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("video %s: %w", videoID, models.ErrNotFound)
			}
			return fmt.Errorf("resolving video: %w", err)
		}
		event.MediaID = video.MediaID

		newer := excludedColumn(tx, "last_watched_at") + " >= watch_events.last_watched_at"
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "video_id"}},
			DoUpdates: clause.Set{
				{
					Column: clause.Column{Name: "position_seconds"},
					Value: gorm.Expr("CASE WHEN " + newer + " THEN " +
						excludedColumn(tx, "position_seconds") + " ELSE watch_events.position_seconds END"),
				},
				{
					Column: clause.Column{Name: "last_watched_at"},
					Value: gorm.Expr("CASE WHEN " + newer + " THEN " +
						excludedColumn(tx, "last_watched_at") + " ELSE watch_events.last_watched_at END"),
				},
			},
		}).Omit("Video").Create(event).Error; err != nil {
			return fmt.Errorf("upserting watch event: %w", err)
		}

		return tx.Where("user_id = ? AND video_id = ?", userID, videoID).First(event).Error
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// GetByUserAndVideo retrieves the event for a (user, video) pair.
func (r *watchEventRepository) GetByUserAndVideo(ctx context.Context, userID, videoID models.ULID) (*models.WatchEvent, error) {
	var event models.WatchEvent
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND video_id = ?", userID, videoID).
		First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// FindByUser returns one page of a user's events, most recent first.
func (r *watchEventRepository) FindByUser(ctx context.Context, userID models.ULID, page, size int) ([]*models.WatchEvent, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.WatchEvent{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting watch events: %w", err)
	}

	var events []*models.WatchEvent
	if err := r.db.WithContext(ctx).
		Preload("Video").
		Where("user_id = ?", userID).
		Order("last_watched_at DESC, video_id ASC").
		Offset(offset(page, size)).
		Limit(size).
		Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("listing watch events: %w", err)
	}
	return events, total, nil
}

// CountDistinctViewersByMedia counts users with any event on the media.
func (r *watchEventRepository) CountDistinctViewersByMedia(ctx context.Context, mediaID models.ULID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.WatchEvent{}).
		Where("media_id = ?", mediaID).
		Distinct("user_id").
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting viewers: %w", err)
	}
	return count, nil
}

type viewerCountRow struct {
	MediaID models.ULID
	Viewers int64
}

// CountDistinctViewers returns viewer counts keyed by media ID. Media without
// viewers are absent from the map.
func (r *watchEventRepository) CountDistinctViewers(ctx context.Context, mediaIDs []models.ULID) (map[models.ULID]int64, error) {
	out := make(map[models.ULID]int64, len(mediaIDs))
	if len(mediaIDs) == 0 {
		return out, nil
	}

	var rows []viewerCountRow
	if err := r.db.WithContext(ctx).
		Model(&models.WatchEvent{}).
		Select("media_id, COUNT(DISTINCT user_id) AS viewers").
		Where("media_id IN ?", models.UniqueULIDs(mediaIDs)).
		Group("media_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting viewers: %w", err)
	}
	for _, row := range rows {
		out[row.MediaID] = row.Viewers
	}
	return out, nil
}

// FindDistinctMediaTouchedByUser returns the user's latest activity per
// media, most recent first with ties broken by media ID. Grouping happens
// here rather than in SQL because sqlite returns MAX() over a time column
// as text.
func (r *watchEventRepository) FindDistinctMediaTouchedByUser(ctx context.Context, userID models.ULID) ([]models.MediaActivity, error) {
	var events []models.WatchEvent
	if err := r.db.WithContext(ctx).
		Select("media_id", "last_watched_at").
		Where("user_id = ?", userID).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("listing touched media: %w", err)
	}

	latest := make(map[models.ULID]time.Time, len(events))
	for _, e := range events {
		if cur, ok := latest[e.MediaID]; !ok || e.LastWatchedAt.After(cur) {
			latest[e.MediaID] = e.LastWatchedAt
		}
	}

	out := make([]models.MediaActivity, 0, len(latest))
	for id, at := range latest {
		out = append(out, models.MediaActivity{MediaID: id, LastWatchedAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastWatchedAt.Equal(out[j].LastWatchedAt) {
			return out[i].LastWatchedAt.After(out[j].LastWatchedAt)
		}
		return out[i].MediaID.Compare(out[j].MediaID) < 0
	})
	return out, nil
}

var _ WatchEventRepository = (*watchEventRepository)(nil)
