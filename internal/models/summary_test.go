package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	m := &Media{
		BaseModel: BaseModel{ID: NewULID()},
		Name:      "Dark",
		Type:      MediaTypeSeries,
		Year:      2017,
		Plot:      "Time travel",
		Videos: []Video{
			{Season: 1, DurationSeconds: 3000},
			{Season: 1, DurationSeconds: 3100},
			{Season: 2, DurationSeconds: 2900},
		},
		Genres: []Genre{{Name: "Sci-Fi"}},
		Actors: []Actor{{Name: "Louis Hofmann"}},
	}

	simple := Summarize(m, false)
	assert.Equal(t, m.ID, simple.ID)
	assert.Equal(t, 3, simple.VideoCount)
	assert.Equal(t, 2, simple.Seasons)
	assert.Equal(t, int64(9000), simple.DurationSeconds)
	assert.Empty(t, simple.Plot)
	assert.Nil(t, simple.Videos)

	full := Summarize(m, true)
	assert.Equal(t, "Time travel", full.Plot)
	assert.Equal(t, []string{"Sci-Fi"}, full.Genres)
	assert.Equal(t, []string{"Louis Hofmann"}, full.Actors)
	assert.Len(t, full.Videos, 3)

	// The summary must not share the media's video slice.
	full.Videos[0].Name = "changed"
	assert.Empty(t, m.Videos[0].Name)
}

func TestTotalPagesFor(t *testing.T) {
	tests := []struct {
		total int64
		size  int
		want  int
	}{
		{0, 30, 0},
		{1, 30, 1},
		{30, 30, 1},
		{31, 30, 2},
		{61, 30, 3},
		{10, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TotalPagesFor(tt.total, tt.size), "total=%d size=%d", tt.total, tt.size)
	}
}
