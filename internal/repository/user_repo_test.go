package repository

import (
	"context"
	"testing"

	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &models.User{Username: "alice", Roles: models.Roles{models.RoleCritic, models.RoleUser}}
	require.NoError(t, repo.Create(ctx, user))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Roles.Has(models.RoleCritic))
	assert.True(t, got.Roles.Has(models.RoleUser))

	byName, err := repo.GetByUsername(ctx, " alice ")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, user.ID, byName.ID)

	missing, err := repo.GetByID(ctx, models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserRepo_DefaultRoleAndDuplicate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &models.User{Username: "bob"}
	require.NoError(t, repo.Create(ctx, user))
	assert.Equal(t, models.Roles{models.RoleUser}, user.Roles)

	err := repo.Create(ctx, &models.User{Username: "bob"})
	assert.ErrorIs(t, err, models.ErrConflict)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGenreRepo(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGenreRepository(db)
	ctx := context.Background()

	horror := &models.Genre{Name: "Horror"}
	require.NoError(t, repo.Create(ctx, horror))
	require.NoError(t, repo.Create(ctx, &models.Genre{Name: "Action"}))
	assert.ErrorIs(t, repo.Create(ctx, &models.Genre{Name: "Horror"}), models.ErrConflict)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Action", all[0].Name)

	found, err := repo.GetByIDs(ctx, []models.ULID{horror.ID, models.NewULID()})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	byName, err := repo.GetByName(ctx, "Horror")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, horror.ID, byName.ID)
}

func TestActorRepo(t *testing.T) {
	db := setupTestDB(t)
	repo := NewActorRepository(db)
	ctx := context.Background()

	actor := &models.Actor{Name: "Sam"}
	require.NoError(t, repo.Create(ctx, actor))
	assert.ErrorIs(t, repo.Create(ctx, &models.Actor{}), models.ErrInvalidInput)

	found, err := repo.GetByIDs(ctx, []models.ULID{actor.ID})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestVideoRepo_UpdateOrder(t *testing.T) {
	db := setupTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()

	media := createTestMedia(t, db, "Show", 2)
	first, second := media.Videos[0], media.Videos[1]

	require.NoError(t, repo.UpdateOrder(ctx, media.ID, []models.VideoOrder{
		{VideoID: first.ID, Index: 2},
		{VideoID: second.ID, Index: 1},
	}))

	videos, err := repo.GetByMediaID(ctx, media.ID)
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, second.ID, videos[0].ID)

	other := createTestMedia(t, db, "Other", 1)
	err = repo.UpdateOrder(ctx, media.ID, []models.VideoOrder{{VideoID: other.Videos[0].ID, Index: 5}})
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Index)
}
