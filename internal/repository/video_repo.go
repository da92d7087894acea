package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/mediarr/internal/models"
	"gorm.io/gorm"
)

// videoRepository implements VideoRepository using GORM.
type videoRepository struct {
	db *gorm.DB
}

// NewVideoRepository creates a new VideoRepository.
func NewVideoRepository(db *gorm.DB) VideoRepository {
	return &videoRepository{db: db}
}

// GetByID retrieves a video by ID.
func (r *videoRepository) GetByID(ctx context.Context, id models.ULID) (*models.Video, error) {
	var video models.Video
	if err := r.db.WithContext(ctx).First(&video, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &video, nil
}

// GetByMediaID retrieves the videos of a media in season/index order.
func (r *videoRepository) GetByMediaID(ctx context.Context, mediaID models.ULID) ([]*models.Video, error) {
	var videos []*models.Video
	if err := r.db.WithContext(ctx).
		Where("media_id = ?", mediaID).
		Order("season ASC, position ASC, id ASC").
		Find(&videos).Error; err != nil {
		return nil, err
	}
	return videos, nil
}

// UpdateOrder reassigns video positions. Every video must belong to mediaID.
func (r *videoRepository) UpdateOrder(ctx context.Context, mediaID models.ULID, order []models.VideoOrder) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, o := range order {
			res := tx.Model(&models.Video{}).
				Where("id = ? AND media_id = ?", o.VideoID, mediaID).
				Update("position", o.Index)
			if res.Error != nil {
				return fmt.Errorf("reordering video %s: %w", o.VideoID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("video %s of media %s: %w", o.VideoID, mediaID, models.ErrNotFound)
			}
		}
		return nil
	})
}

var _ VideoRepository = (*videoRepository)(nil)
