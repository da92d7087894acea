package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmylchreest/mediarr/internal/models"
	"gorm.io/gorm"
)

type actorRepository struct {
	db *gorm.DB
}

// NewActorRepository creates a new ActorRepository.
func NewActorRepository(db *gorm.DB) ActorRepository {
	return &actorRepository{db: db}
}

func (r *actorRepository) Create(ctx context.Context, actor *models.Actor) error {
	actor.Name = strings.TrimSpace(actor.Name)
	if actor.Name == "" {
		return models.ErrNameRequired
	}
	if err := r.db.WithContext(ctx).Create(actor).Error; err != nil {
		return fmt.Errorf("creating actor: %w", err)
	}
	return nil
}

func (r *actorRepository) GetAll(ctx context.Context) ([]*models.Actor, error) {
	var actors []*models.Actor
	if err := r.db.WithContext(ctx).Order("name ASC, id ASC").Find(&actors).Error; err != nil {
		return nil, err
	}
	return actors, nil
}

func (r *actorRepository) GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.Actor, error) {
	if len(ids) == 0 {
		return []*models.Actor{}, nil
	}
	var actors []*models.Actor
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&actors).Error; err != nil {
		return nil, err
	}
	return actors, nil
}

var _ ActorRepository = (*actorRepository)(nil)
