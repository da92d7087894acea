package repository

import (
	"context"
	"testing"

	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatingRepo_Upsert_Replaces(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRatingRepository(db)
	ctx := context.Background()

	user := createTestUser(t, db, "rater")
	media := createTestMedia(t, db, "Rated", 0)

	first := &models.Rating{UserID: user.ID, MediaID: media.ID, Score: 4}
	require.NoError(t, repo.Upsert(ctx, first))

	second := &models.Rating{UserID: user.ID, MediaID: media.ID, Score: 9}
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := repo.GetByUserAndMedia(ctx, user.ID, media.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 9, got.Score)

	var count int64
	db.Model(&models.Rating{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestRatingRepo_Upsert_InvalidScore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRatingRepository(db)

	err := repo.Upsert(context.Background(), &models.Rating{UserID: models.NewULID(), MediaID: models.NewULID(), Score: 11})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestRatingRepo_GetStats(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRatingRepository(db)
	ctx := context.Background()

	u1 := createTestUser(t, db, "u1")
	u2 := createTestUser(t, db, "u2")
	rated := createTestMedia(t, db, "Rated", 0)
	unrated := createTestMedia(t, db, "Unrated", 0)

	require.NoError(t, repo.Upsert(ctx, &models.Rating{UserID: u1.ID, MediaID: rated.ID, Score: 6}))
	require.NoError(t, repo.Upsert(ctx, &models.Rating{UserID: u2.ID, MediaID: rated.ID, Score: 9}))

	stats, err := repo.GetStats(ctx, []models.ULID{rated.ID, unrated.ID})
	require.NoError(t, err)
	require.Contains(t, stats, rated.ID)
	assert.InDelta(t, 7.5, stats[rated.ID].Average, 0.001)
	assert.Equal(t, int64(2), stats[rated.ID].Count)
	assert.NotContains(t, stats, unrated.ID)

	empty, err := repo.GetStats(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReviewRepo_CRUD(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()

	critic := createTestUser(t, db, "critic", models.RoleCritic)
	media := createTestMedia(t, db, "Reviewed", 0)

	review := &models.Review{UserID: critic.ID, MediaID: media.ID, Title: " Great ", Comment: "loved it"}
	require.NoError(t, repo.Create(ctx, review))
	assert.Equal(t, "Great", review.Title)

	review.Comment = "still great"
	require.NoError(t, repo.Update(ctx, review))

	got, err := repo.GetByID(ctx, review.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "still great", got.Comment)

	page, total, err := repo.GetByMediaID(ctx, media.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, page, 1)

	require.NoError(t, repo.Delete(ctx, review.ID))
	got, err = repo.GetByID(ctx, review.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, repo.Delete(ctx, review.ID), models.ErrNotFound)
}
