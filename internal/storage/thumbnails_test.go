package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/jmylchreest/mediarr/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestThumbnailStore(t *testing.T, maxSize int64) *ThumbnailStore {
	t.Helper()
	store, err := NewThumbnailStore(t.TempDir(), maxSize)
	require.NoError(t, err)
	return store.WithLogger(observability.NewDiscardLogger())
}

func TestValidateThumbnailFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
	}{
		{"poster.jpg", true},
		{"poster.JPEG", true},
		{"poster.png", true},
		{"poster.gif", false},
		{"poster", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			err := ValidateThumbnailFilename(tt.filename)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, models.ErrInvalidInput)
			}
		})
	}
}

func TestThumbnailStore_SaveOpenDelete(t *testing.T) {
	store := newTestThumbnailStore(t, 1024)
	ctx := context.Background()
	name := models.ThumbnailName("Film", 2001)

	n, err := store.Save(ctx, name, bytes.NewReader([]byte("jpegdata")))
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	exists, err := store.Exists(name)
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.Open(name)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "jpegdata", string(data))

	require.NoError(t, store.Delete(name))
	exists, err = store.Exists(name)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestThumbnailStore_RejectsOversized(t *testing.T) {
	store := newTestThumbnailStore(t, 4)

	_, err := store.Save(context.Background(), "big.jpg", bytes.NewReader([]byte("12345")))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Contains(t, err.Error(), "4 B")
}

func TestThumbnailStore_RejectsNestedNames(t *testing.T) {
	store := newTestThumbnailStore(t, 0)

	_, err := store.Save(context.Background(), "../x.jpg", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrPathEscapes)
}
