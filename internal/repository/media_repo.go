package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmylchreest/mediarr/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	mediaGenresTable = "media_genres"
	mediaActorsTable = "media_actors"
)

// mediaRepository implements MediaRepository using GORM.
type mediaRepository struct {
	db *gorm.DB
}

// NewMediaRepository creates a new MediaRepository.
func NewMediaRepository(db *gorm.DB) MediaRepository {
	return &mediaRepository{db: db}
}

// preloaded attaches the associations every read path needs.
func preloaded(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Videos", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("season ASC, position ASC, id ASC")
		}).
		Preload("Genres", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("name ASC")
		}).
		Preload("Actors", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("name ASC")
		})
}

func offset(page, size int) int {
	if page < 0 {
		page = 0
	}
	return page * size
}

// isUniqueViolation matches translated and raw driver errors for the three
// supported dialects.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "Duplicate entry")
}

// Create inserts a media row with its videos and genre/actor links in one
// transaction. Genres and actors must already exist.
func (r *mediaRepository) Create(ctx context.Context, media *models.Media) error {
	if err := media.Validate(); err != nil {
		return fmt.Errorf("validating media: %w", err)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(media).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: media %q already exists", models.ErrConflict, media.Name)
			}
			return fmt.Errorf("creating media: %w", err)
		}

		for i := range media.Videos {
			media.Videos[i].MediaID = media.ID
		}
		if len(media.Videos) > 0 {
			if err := tx.Create(&media.Videos).Error; err != nil {
				return fmt.Errorf("creating videos: %w", err)
			}
		}

		if err := insertLinks(tx, mediaGenresTable, "genre_id", media.ID, genreIDs(media.Genres)); err != nil {
			return err
		}
		return insertLinks(tx, mediaActorsTable, "actor_id", media.ID, actorIDs(media.Actors))
	})
}

func genreIDs(genres []models.Genre) []models.ULID {
	ids := make([]models.ULID, len(genres))
	for i := range genres {
		ids[i] = genres[i].ID
	}
	return ids
}

func actorIDs(actors []models.Actor) []models.ULID {
	ids := make([]models.ULID, len(actors))
	for i := range actors {
		ids[i] = actors[i].ID
	}
	return ids
}

func insertLinks(tx *gorm.DB, table, column string, mediaID models.ULID, ids []models.ULID) error {
	ids = models.UniqueULIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(ids))
	for i, id := range ids {
		rows[i] = map[string]any{"media_id": mediaID, column: id}
	}
	if err := tx.Table(table).Create(rows).Error; err != nil {
		return fmt.Errorf("linking %s: %w", table, err)
	}
	return nil
}

func replaceLinks(ctx context.Context, db *gorm.DB, table, column string, mediaID models.ULID, ids []models.ULID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM "+table+" WHERE media_id = ?", mediaID).Error; err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
		return insertLinks(tx, table, column, mediaID, ids)
	})
}

// GetByID retrieves a media with its associations.
func (r *mediaRepository) GetByID(ctx context.Context, id models.ULID) (*models.Media, error) {
	var media models.Media
	if err := preloaded(r.db.WithContext(ctx)).First(&media, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &media, nil
}

// GetByName retrieves a media by name.
func (r *mediaRepository) GetByName(ctx context.Context, name string) (*models.Media, error) {
	var media models.Media
	if err := r.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).First(&media).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &media, nil
}

// GetByIDs retrieves media with their associations.
func (r *mediaRepository) GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.Media, error) {
	if len(ids) == 0 {
		return []*models.Media{}, nil
	}
	var media []*models.Media
	if err := preloaded(r.db.WithContext(ctx)).Where("id IN ?", ids).Find(&media).Error; err != nil {
		return nil, err
	}
	return media, nil
}

// FindPage returns a name-ordered page of media.
func (r *mediaRepository) FindPage(ctx context.Context, page, size int, search string) ([]*models.Media, int64, error) {
	term := strings.ToLower(strings.TrimSpace(search))
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.Media{})
		if term != "" {
			q = q.Where("LOWER(name) LIKE ?", "%"+term+"%")
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting media: %w", err)
	}

	var media []*models.Media
	if err := preloaded(base()).
		Order("name ASC, id ASC").
		Offset(offset(page, size)).
		Limit(size).
		Find(&media).Error; err != nil {
		return nil, 0, fmt.Errorf("listing media: %w", err)
	}
	return media, total, nil
}

// rankedID is one row of a ranking query.
type rankedID struct {
	ID models.ULID
}

// ranked loads the media for a ranking query and returns them in the
// ranking's order.
func (r *mediaRepository) ranked(ctx context.Context, q *gorm.DB, page, size int) ([]*models.Media, error) {
	var rows []rankedID
	if err := q.Offset(offset(page, size)).Limit(size).Scan(&rows).Error; err != nil {
		return nil, err
	}

	ids := make([]models.ULID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	loaded, err := r.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[models.ULID]*models.Media, len(loaded))
	for _, m := range loaded {
		byID[m.ID] = m
	}
	out := make([]*models.Media, 0, len(ids))
	for _, id := range ids {
		// A row deleted between the ranking and the load is skipped.
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// FindBestRated ranks every media by average score; unrated media rank last.
func (r *mediaRepository) FindBestRated(ctx context.Context, page, size int) ([]*models.Media, int64, error) {
	total, err := r.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	q := r.db.WithContext(ctx).
		Table("media").
		Select("media.id AS id, COALESCE(AVG(ratings.score), 0) AS score, COUNT(ratings.id) AS votes").
		Joins("LEFT JOIN ratings ON ratings.media_id = media.id").
		Group("media.id").
		Order("score DESC, votes DESC, media.id ASC")

	media, err := r.ranked(ctx, q, page, size)
	if err != nil {
		return nil, 0, fmt.Errorf("ranking best rated: %w", err)
	}
	return media, total, nil
}

// FindMostWatched ranks every media by distinct viewer count.
func (r *mediaRepository) FindMostWatched(ctx context.Context, page, size int) ([]*models.Media, int64, error) {
	total, err := r.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	q := r.db.WithContext(ctx).
		Table("media").
		Select("media.id AS id, COUNT(DISTINCT watch_events.user_id) AS viewers").
		Joins("LEFT JOIN watch_events ON watch_events.media_id = media.id").
		Group("media.id").
		Order("viewers DESC, media.id ASC")

	media, err := r.ranked(ctx, q, page, size)
	if err != nil {
		return nil, 0, fmt.Errorf("ranking most watched: %w", err)
	}
	return media, total, nil
}

// FindLastWatched ranks watched media by their most recent watch by anyone.
// Media nobody has watched are excluded.
func (r *mediaRepository) FindLastWatched(ctx context.Context, page, size int) ([]*models.Media, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.WatchEvent{}).
		Distinct("media_id").
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting watched media: %w", err)
	}

	q := r.db.WithContext(ctx).
		Table("watch_events").
		Select("media_id AS id").
		Group("media_id").
		Order("MAX(last_watched_at) DESC, media_id ASC")

	media, err := r.ranked(ctx, q, page, size)
	if err != nil {
		return nil, 0, fmt.Errorf("ranking last watched: %w", err)
	}
	return media, total, nil
}

// Update saves scalar media fields.
func (r *mediaRepository) Update(ctx context.Context, media *models.Media) error {
	if err := media.Validate(); err != nil {
		return fmt.Errorf("validating media: %w", err)
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(media).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: media %q already exists", models.ErrConflict, media.Name)
		}
		return fmt.Errorf("updating media: %w", err)
	}
	return nil
}

// ReplaceGenres sets the genre links of a media.
func (r *mediaRepository) ReplaceGenres(ctx context.Context, mediaID models.ULID, genreIDs []models.ULID) error {
	return replaceLinks(ctx, r.db, mediaGenresTable, "genre_id", mediaID, genreIDs)
}

// ReplaceActors sets the actor links of a media.
func (r *mediaRepository) ReplaceActors(ctx context.Context, mediaID models.ULID, actorIDs []models.ULID) error {
	return replaceLinks(ctx, r.db, mediaActorsTable, "actor_id", mediaID, actorIDs)
}

// Delete removes a media with its watch events, ratings, reviews, links and
// videos in one transaction.
func (r *mediaRepository) Delete(ctx context.Context, id models.ULID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		steps := []struct {
			what string
			run  func() error
		}{
			{"watch events", func() error { return tx.Where("media_id = ?", id).Delete(&models.WatchEvent{}).Error }},
			{"ratings", func() error { return tx.Where("media_id = ?", id).Delete(&models.Rating{}).Error }},
			{"reviews", func() error { return tx.Where("media_id = ?", id).Delete(&models.Review{}).Error }},
			{"genre links", func() error { return tx.Exec("DELETE FROM "+mediaGenresTable+" WHERE media_id = ?", id).Error }},
			{"actor links", func() error { return tx.Exec("DELETE FROM "+mediaActorsTable+" WHERE media_id = ?", id).Error }},
			{"videos", func() error { return tx.Where("media_id = ?", id).Delete(&models.Video{}).Error }},
		}
		for _, step := range steps {
			if err := step.run(); err != nil {
				return fmt.Errorf("deleting %s: %w", step.what, err)
			}
		}

		res := tx.Where("id = ?", id).Delete(&models.Media{})
		if res.Error != nil {
			return fmt.Errorf("deleting media: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("media %s: %w", id, models.ErrNotFound)
		}
		return nil
	})
}

// Count returns the number of media.
func (r *mediaRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Media{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("counting media: %w", err)
	}
	return total, nil
}

var _ MediaRepository = (*mediaRepository)(nil)
