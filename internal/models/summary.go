package models

import "time"

// MediaSummary is the read model served from the cache. A summary is
// produced once per cache entry and replaced, never mutated, on invalidation.
type MediaSummary struct {
	ID              ULID      `json:"id"`
	Name            string    `json:"name"`
	Type            MediaType `json:"type"`
	Year            int       `json:"year"`
	Thumbnail       string    `json:"thumbnail,omitempty"`
	VideoCount      int       `json:"video_count"`
	Seasons         int       `json:"seasons"`
	DurationSeconds int64     `json:"duration_seconds"`
	RatingAverage   float64   `json:"rating_average"`
	RatingCount     int64     `json:"rating_count"`
	UniqueViewers   int64     `json:"unique_viewers"`

	// Populated only for complete listings and single-item lookups.
	Plot    string   `json:"plot,omitempty"`
	Trailer string   `json:"trailer,omitempty"`
	Genres  []string `json:"genres,omitempty"`
	Actors  []string `json:"actors,omitempty"`
	Videos  []Video  `json:"videos,omitempty"`
}

// RatingStats is the rating aggregate for one media title.
type RatingStats struct {
	MediaID ULID
	Average float64
	Count   int64
}

// Summarize builds a summary from a loaded media row. Aggregates that come
// from other tables are filled in by the caller.
func Summarize(m *Media, complete bool) MediaSummary {
	s := MediaSummary{
		ID:         m.ID,
		Name:       m.Name,
		Type:       m.Type,
		Year:       m.Year,
		Thumbnail:  m.Thumbnail,
		VideoCount: len(m.Videos),
	}
	seasons := make(map[int]struct{})
	for _, v := range m.Videos {
		s.DurationSeconds += v.DurationSeconds
		seasons[v.Season] = struct{}{}
	}
	if m.Type == MediaTypeSeries {
		s.Seasons = len(seasons)
	}
	if !complete {
		return s
	}
	s.Plot = m.Plot
	s.Trailer = m.Trailer
	for _, g := range m.Genres {
		s.Genres = append(s.Genres, g.Name)
	}
	for _, a := range m.Actors {
		s.Actors = append(s.Actors, a.Name)
	}
	if len(m.Videos) > 0 {
		s.Videos = append([]Video(nil), m.Videos...)
	}
	return s
}

// Page is one page of a paginated result.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// TotalPagesFor returns ceil(total/size), or 0 when size is not positive.
func TotalPagesFor(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

// WatchEntry is one item of a user's last-watched list.
type WatchEntry struct {
	VideoID       ULID      `json:"video_id"`
	MediaID       ULID      `json:"media_id"`
	VideoName     string    `json:"video_name,omitempty"`
	Season        int       `json:"season"`
	Index         int       `json:"index"`
	Timestamp     int64     `json:"timestamp"`
	LastWatchedAt time.Time `json:"last_watched_at"`
}
