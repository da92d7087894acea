package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Each pooled connection to :memory: is a separate database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.Genre{},
		&models.Actor{},
		&models.User{},
		&models.Media{},
		&models.Video{},
		&models.Rating{},
		&models.Review{},
		&models.WatchEvent{},
	)
	require.NoError(t, err)

	return db
}

func createTestMedia(t *testing.T, db *gorm.DB, name string, videos int) *models.Media {
	t.Helper()
	media := &models.Media{Name: name, Type: models.MediaTypeSeries, Year: 2020}
	for i := 0; i < videos; i++ {
		media.Videos = append(media.Videos, models.Video{
			Name:            name + " episode",
			Season:          1,
			Index:           i + 1,
			DurationSeconds: 600,
		})
	}
	require.NoError(t, NewMediaRepository(db).Create(context.Background(), media))
	return media
}

func createTestUser(t *testing.T, db *gorm.DB, username string, roles ...models.Role) *models.User {
	t.Helper()
	user := &models.User{Username: username, Roles: roles}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), user))
	return user
}

func TestMediaRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db)
	ctx := context.Background()

	drama := &models.Genre{Name: "Drama"}
	require.NoError(t, NewGenreRepository(db).Create(ctx, drama))
	actor := &models.Actor{Name: "Jane Doe"}
	require.NoError(t, NewActorRepository(db).Create(ctx, actor))

	media := &models.Media{
		Name: "  The Long Road ",
		Type: models.MediaTypeSeries,
		Year: 2019,
		Videos: []models.Video{
			{Name: "Two", Season: 1, Index: 2, DurationSeconds: 100},
			{Name: "One", Season: 1, Index: 1, DurationSeconds: 200},
			{Name: "S2", Season: 2, Index: 1, DurationSeconds: 300},
		},
		Genres: []models.Genre{*drama},
		Actors: []models.Actor{*actor},
	}
	require.NoError(t, repo.Create(ctx, media))
	assert.False(t, media.ID.IsZero())
	assert.Equal(t, "The Long Road", media.Name)

	got, err := repo.GetByID(ctx, media.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Videos, 3)
	assert.Equal(t, "One", got.Videos[0].Name)
	assert.Equal(t, "Two", got.Videos[1].Name)
	assert.Equal(t, "S2", got.Videos[2].Name)
	require.Len(t, got.Genres, 1)
	assert.Equal(t, "Drama", got.Genres[0].Name)
	require.Len(t, got.Actors, 1)

	byName, err := repo.GetByName(ctx, "The Long Road")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, media.ID, byName.ID)
}

func TestMediaRepo_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db)

	got, err := repo.GetByID(context.Background(), models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMediaRepo_Create_DuplicateName(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db)
	ctx := context.Background()

	createTestMedia(t, db, "Dup", 0)
	err := repo.Create(ctx, &models.Media{Name: "Dup"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestMediaRepo_Create_Invalid(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db)

	err := repo.Create(context.Background(), &models.Media{Name: "  "})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestMediaRepo_FindPage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db)
	ctx := context.Background()

	for _, name := range []string{"Delta", "alpha", "Charlie", "Bravo", "Echo"} {
		createTestMedia(t, db, name, 1)
	}

	page0, total, err := repo.FindPage(ctx, 0, 2, "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page0, 2)

	page2, _, err := repo.FindPage(ctx, 2, 2, "")
	require.NoError(t, err)
	require.Len(t, page2, 1)

	filtered, total, err := repo.FindPage(ctx, 0, 10, "HAR")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Charlie", filtered[0].Name)
	assert.Len(t, filtered[0].Videos, 1)

	empty, _, err := repo.FindPage(ctx, 10, 2, "")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMediaRepo_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db)
	ctx := context.Background()

	media := createTestMedia(t, db, "Before", 2)
	media.Name = "After"
	media.Plot = "new plot"
	require.NoError(t, repo.Update(ctx, media))

	got, err := repo.GetByID(ctx, media.ID)
	require.NoError(t, err)
	assert.Equal(t, "After", got.Name)
	assert.Equal(t, "new plot", got.Plot)
	assert.Len(t, got.Videos, 2)
}

func TestMediaRepo_ReplaceGenres(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db)
	genres := NewGenreRepository(db)
	ctx := context.Background()

	a := &models.Genre{Name: "Action"}
	b := &models.Genre{Name: "Comedy"}
	require.NoError(t, genres.Create(ctx, a))
	require.NoError(t, genres.Create(ctx, b))

	media := createTestMedia(t, db, "Linked", 0)
	require.NoError(t, repo.ReplaceGenres(ctx, media.ID, []models.ULID{a.ID, b.ID, a.ID}))

	got, err := repo.GetByID(ctx, media.ID)
	require.NoError(t, err)
	assert.Len(t, got.Genres, 2)

	require.NoError(t, repo.ReplaceGenres(ctx, media.ID, []models.ULID{b.ID}))
	got, err = repo.GetByID(ctx, media.ID)
	require.NoError(t, err)
	require.Len(t, got.Genres, 1)
	assert.Equal(t, "Comedy", got.Genres[0].Name)
}

func TestMediaRepo_Delete_Cascades(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db)
	ctx := context.Background()

	user := createTestUser(t, db, "viewer")
	media := createTestMedia(t, db, "Doomed", 2)
	other := createTestMedia(t, db, "Survivor", 1)

	_, err := NewWatchEventRepository(db).Upsert(ctx, user.ID, media.Videos[0].ID, 10, time.Now())
	require.NoError(t, err)
	require.NoError(t, NewRatingRepository(db).Upsert(ctx, &models.Rating{UserID: user.ID, MediaID: media.ID, Score: 7}))
	require.NoError(t, NewReviewRepository(db).Create(ctx, &models.Review{UserID: user.ID, MediaID: media.ID, Title: "ok"}))

	require.NoError(t, repo.Delete(ctx, media.ID))

	got, err := repo.GetByID(ctx, media.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	var count int64
	db.Model(&models.Video{}).Where("media_id = ?", media.ID).Count(&count)
	assert.Zero(t, count)
	db.Model(&models.WatchEvent{}).Where("media_id = ?", media.ID).Count(&count)
	assert.Zero(t, count)
	db.Model(&models.Rating{}).Where("media_id = ?", media.ID).Count(&count)
	assert.Zero(t, count)
	db.Model(&models.Review{}).Where("media_id = ?", media.ID).Count(&count)
	assert.Zero(t, count)

	survivor, err := repo.GetByID(ctx, other.ID)
	require.NoError(t, err)
	require.NotNil(t, survivor)
	assert.Len(t, survivor.Videos, 1)

	err = repo.Delete(ctx, media.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMediaRepo_FindBestRated(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db)
	ratings := NewRatingRepository(db)
	ctx := context.Background()

	u1 := createTestUser(t, db, "u1")
	u2 := createTestUser(t, db, "u2")
	low := createTestMedia(t, db, "Low", 0)
	high := createTestMedia(t, db, "High", 0)
	createTestMedia(t, db, "Unrated", 0)

	require.NoError(t, ratings.Upsert(ctx, &models.Rating{UserID: u1.ID, MediaID: low.ID, Score: 3}))
	require.NoError(t, ratings.Upsert(ctx, &models.Rating{UserID: u1.ID, MediaID: high.ID, Score: 9}))
	require.NoError(t, ratings.Upsert(ctx, &models.Rating{UserID: u2.ID, MediaID: high.ID, Score: 8}))

	ranked, total, err := repo.FindBestRated(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, ranked, 3)
	assert.Equal(t, "High", ranked[0].Name)
	assert.Equal(t, "Low", ranked[1].Name)
	assert.Equal(t, "Unrated", ranked[2].Name)
}

func TestMediaRepo_FindMostWatchedAndLastWatched(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db)
	events := NewWatchEventRepository(db)
	ctx := context.Background()

	u1 := createTestUser(t, db, "u1")
	u2 := createTestUser(t, db, "u2")
	popular := createTestMedia(t, db, "Popular", 2)
	niche := createTestMedia(t, db, "Niche", 1)
	createTestMedia(t, db, "Ignored", 1)

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	_, err := events.Upsert(ctx, u1.ID, popular.Videos[0].ID, 1, base)
	require.NoError(t, err)
	_, err = events.Upsert(ctx, u1.ID, popular.Videos[1].ID, 1, base.Add(time.Minute))
	require.NoError(t, err)
	_, err = events.Upsert(ctx, u2.ID, popular.Videos[0].ID, 1, base.Add(2*time.Minute))
	require.NoError(t, err)
	_, err = events.Upsert(ctx, u2.ID, niche.Videos[0].ID, 1, base.Add(time.Hour))
	require.NoError(t, err)

	most, total, err := repo.FindMostWatched(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, most, 3)
	assert.Equal(t, "Popular", most[0].Name)
	assert.Equal(t, "Niche", most[1].Name)

	last, total, err := repo.FindLastWatched(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, last, 2)
	assert.Equal(t, "Niche", last[0].Name)
	assert.Equal(t, "Popular", last[1].Name)
}

func TestMediaRepo_Count(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db)

	createTestMedia(t, db, "One", 0)
	createTestMedia(t, db, "Two", 0)

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
