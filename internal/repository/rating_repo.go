package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/mediarr/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ratingRepository implements RatingRepository using GORM.
type ratingRepository struct {
	db *gorm.DB
}

// NewRatingRepository creates a new RatingRepository.
func NewRatingRepository(db *gorm.DB) RatingRepository {
	return &ratingRepository{db: db}
}

// Upsert creates or replaces the user's rating for a media. On return the
// rating carries the persisted ID.
func (r *ratingRepository) Upsert(ctx context.Context, rating *models.Rating) error {
	if err := rating.Validate(); err != nil {
		return fmt.Errorf("validating rating: %w", err)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "media_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"score":      rating.Score,
				"updated_at": time.Now().UTC(),
			}),
		}).Create(rating).Error; err != nil {
			return fmt.Errorf("upserting rating: %w", err)
		}
		return tx.Where("user_id = ? AND media_id = ?", rating.UserID, rating.MediaID).First(rating).Error
	})
	return err
}

// GetByUserAndMedia retrieves a user's rating for a media.
func (r *ratingRepository) GetByUserAndMedia(ctx context.Context, userID, mediaID models.ULID) (*models.Rating, error) {
	var rating models.Rating
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND media_id = ?", userID, mediaID).
		First(&rating).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rating, nil
}

type ratingStatsRow struct {
	MediaID models.ULID
	Average float64
	Count   int64
}

// GetStats returns rating aggregates for the given media.
func (r *ratingRepository) GetStats(ctx context.Context, mediaIDs []models.ULID) (map[models.ULID]models.RatingStats, error) {
	out := make(map[models.ULID]models.RatingStats, len(mediaIDs))
	if len(mediaIDs) == 0 {
		return out, nil
	}

	var rows []ratingStatsRow
	if err := r.db.WithContext(ctx).
		Model(&models.Rating{}).
		Select("media_id, AVG(score) AS average, COUNT(*) AS count").
		Where("media_id IN ?", models.UniqueULIDs(mediaIDs)).
		Group("media_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("aggregating ratings: %w", err)
	}
	for _, row := range rows {
		out[row.MediaID] = models.RatingStats{MediaID: row.MediaID, Average: row.Average, Count: row.Count}
	}
	return out, nil
}

var _ RatingRepository = (*ratingRepository)(nil)
