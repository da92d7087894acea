package models

import (
	"strconv"
	"strings"
)

// MediaType distinguishes single-video media from episodic media.
type MediaType string

const (
	// MediaTypeMovie is a single feature.
	MediaTypeMovie MediaType = "movie"

	// MediaTypeSeries is an episodic title with one video per episode.
	MediaTypeSeries MediaType = "series"
)

// Valid reports whether t is a known media type.
func (t MediaType) Valid() bool {
	return t == MediaTypeMovie || t == MediaTypeSeries
}

// Media is a catalog title. Its videos, genres and actors are owned here;
// summary aggregates are derived and never stored on the row.
type Media struct {
	BaseModel

	// Name is the unique display name of the title.
	Name string `gorm:"size:255;not null;uniqueIndex" json:"name"`

	// Type is movie or series.
	Type MediaType `gorm:"size:16;not null;default:'movie'" json:"type"`

	// Year is the release year.
	Year int `gorm:"not null;default:0" json:"year"`

	Plot    string `gorm:"type:text" json:"plot,omitempty"`
	Trailer string `gorm:"size:1024" json:"trailer,omitempty"`

	// Thumbnail is the file name of the stored thumbnail image.
	Thumbnail string `gorm:"size:512" json:"thumbnail,omitempty"`

	Videos []Video `gorm:"foreignKey:MediaID;constraint:OnDelete:CASCADE" json:"videos,omitempty"`
	Genres []Genre `gorm:"many2many:media_genres;constraint:OnDelete:CASCADE" json:"genres,omitempty"`
	Actors []Actor `gorm:"many2many:media_actors;constraint:OnDelete:CASCADE" json:"actors,omitempty"`
}

// TableName returns the table name for the Media model.
func (Media) TableName() string {
	return "media"
}

// Validate checks the media fields that are required on create and update.
func (m *Media) Validate() error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return ErrNameRequired
	}
	if m.Type == "" {
		m.Type = MediaTypeMovie
	}
	if !m.Type.Valid() {
		return ErrInvalidMediaType
	}
	if m.Year != 0 && (m.Year < 1870 || m.Year > 9999) {
		return ErrInvalidYear
	}
	for i := range m.Videos {
		if err := m.Videos[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ThumbnailName returns the canonical stored file name for the thumbnail.
func (m *Media) ThumbnailName() string {
	return ThumbnailName(m.Name, m.Year)
}

// ThumbnailName builds "<name>_<year>.jpg" with path separators stripped.
func ThumbnailName(name string, year int) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	return clean + "_" + strconv.Itoa(year) + ".jpg"
}

// Video is one playable file of a media title.
type Video struct {
	BaseModel

	// MediaID is the parent media.
	MediaID ULID `gorm:"type:varchar(26);not null;index" json:"media_id"`

	Name   string `gorm:"size:255" json:"name"`
	Season int    `gorm:"default:0" json:"season"`

	// Index orders videos within a media (episode order).
	Index int `gorm:"column:position;default:0;index" json:"index"`

	// DurationSeconds is the video length.
	DurationSeconds int64 `gorm:"default:0" json:"duration_seconds"`
}

// TableName returns the table name for the Video model.
func (Video) TableName() string {
	return "videos"
}

// Validate checks the video fields.
func (v *Video) Validate() error {
	if v.DurationSeconds < 0 {
		return ErrInvalidDuration
	}
	return nil
}

// VideoOrder reassigns a video's position within its media.
type VideoOrder struct {
	VideoID ULID `json:"video_id"`
	Index   int  `json:"index"`
}

// Genre is a catalog genre.
type Genre struct {
	BaseModel
	Name string `gorm:"size:128;not null;uniqueIndex" json:"name"`
}

// TableName returns the table name for the Genre model.
func (Genre) TableName() string {
	return "genres"
}

// Actor is a cast member.
type Actor struct {
	BaseModel
	Name string `gorm:"size:255;not null;index" json:"name"`
}

// TableName returns the table name for the Actor model.
func (Actor) TableName() string {
	return "actors"
}
