package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/mediarr/internal/models"
	"gorm.io/gorm"
)

// reviewRepository implements ReviewRepository using GORM.
type reviewRepository struct {
	db *gorm.DB
}

// NewReviewRepository creates a new ReviewRepository.
func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

// Create inserts a review.
func (r *reviewRepository) Create(ctx context.Context, review *models.Review) error {
	if err := review.Validate(); err != nil {
		return fmt.Errorf("validating review: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(review).Error; err != nil {
		return fmt.Errorf("creating review: %w", err)
	}
	return nil
}

// GetByID retrieves a review by ID.
func (r *reviewRepository) GetByID(ctx context.Context, id models.ULID) (*models.Review, error) {
	var review models.Review
	if err := r.db.WithContext(ctx).First(&review, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &review, nil
}

// Update saves a review.
func (r *reviewRepository) Update(ctx context.Context, review *models.Review) error {
	if err := review.Validate(); err != nil {
		return fmt.Errorf("validating review: %w", err)
	}
	if err := r.db.WithContext(ctx).Save(review).Error; err != nil {
		return fmt.Errorf("updating review: %w", err)
	}
	return nil
}

// Delete removes a review.
func (r *reviewRepository) Delete(ctx context.Context, id models.ULID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Review{})
	if res.Error != nil {
		return fmt.Errorf("deleting review: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("review %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// GetByMediaID returns one page of a media's reviews, newest first.
func (r *reviewRepository) GetByMediaID(ctx context.Context, mediaID models.ULID, page, size int) ([]*models.Review, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Where("media_id = ?", mediaID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting reviews: %w", err)
	}

	var reviews []*models.Review
	if err := r.db.WithContext(ctx).
		Where("media_id = ?", mediaID).
		Order("created_at DESC, id DESC").
		Offset(offset(page, size)).
		Limit(size).
		Find(&reviews).Error; err != nil {
		return nil, 0, fmt.Errorf("listing reviews: %w", err)
	}
	return reviews, total, nil
}

var _ ReviewRepository = (*reviewRepository)(nil)
