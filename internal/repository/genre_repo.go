package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmylchreest/mediarr/internal/models"
	"gorm.io/gorm"
)

// genreRepository implements GenreRepository using GORM.
type genreRepository struct {
	db *gorm.DB
}

// NewGenreRepository creates a new GenreRepository.
func NewGenreRepository(db *gorm.DB) GenreRepository {
	return &genreRepository{db: db}
}

// Create inserts a genre.
func (r *genreRepository) Create(ctx context.Context, genre *models.Genre) error {
	genre.Name = strings.TrimSpace(genre.Name)
	if genre.Name == "" {
		return models.ErrNameRequired
	}
	if err := r.db.WithContext(ctx).Create(genre).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: genre %q already exists", models.ErrConflict, genre.Name)
		}
		return fmt.Errorf("creating genre: %w", err)
	}
	return nil
}

// GetAll returns every genre ordered by name.
func (r *genreRepository) GetAll(ctx context.Context) ([]*models.Genre, error) {
	var genres []*models.Genre
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&genres).Error; err != nil {
		return nil, err
	}
	return genres, nil
}

// GetByIDs retrieves the genres that exist among ids.
func (r *genreRepository) GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.Genre, error) {
	if len(ids) == 0 {
		return []*models.Genre{}, nil
	}
	var genres []*models.Genre
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&genres).Error; err != nil {
		return nil, err
	}
	return genres, nil
}

// GetByName retrieves a genre by name.
func (r *genreRepository) GetByName(ctx context.Context, name string) (*models.Genre, error) {
	var genre models.Genre
	if err := r.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).First(&genre).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &genre, nil
}

var _ GenreRepository = (*genreRepository)(nil)
