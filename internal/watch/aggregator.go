// Package watch computes per-user and per-media aggregates over the
// watch-event log. It holds no state; every call reads the store.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/jmylchreest/mediarr/internal/observability"
)

// EventStore is the slice of the persistence gateway the aggregator reads.
type EventStore interface {
	Upsert(ctx context.Context, userID, videoID models.ULID, timestamp int64, watchedAt time.Time) (*models.WatchEvent, error)
	FindByUser(ctx context.Context, userID models.ULID, page, size int) ([]*models.WatchEvent, int64, error)
	CountDistinctViewersByMedia(ctx context.Context, mediaID models.ULID) (int64, error)
	CountDistinctViewers(ctx context.Context, mediaIDs []models.ULID) (map[models.ULID]int64, error)
	FindDistinctMediaTouchedByUser(ctx context.Context, userID models.ULID) ([]models.MediaActivity, error)
}

// MediaCounter reports the number of distinct media in the catalog.
type MediaCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Aggregator answers watch-history queries.
type Aggregator struct {
	events EventStore
	media  MediaCounter
	logger *slog.Logger
	now    func() time.Time
}

// NewAggregator creates an aggregator over the given stores.
func NewAggregator(events EventStore, media MediaCounter) *Aggregator {
	return &Aggregator{
		events: events,
		media:  media,
		logger: slog.Default(),
		now:    time.Now,
	}
}

// WithLogger sets the logger for the aggregator.
func (a *Aggregator) WithLogger(logger *slog.Logger) *Aggregator {
	a.logger = observability.WithComponent(logger, "watch")
	return a
}

// WithClock overrides the clock used by Record.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// UniqueViewers counts distinct users with any event on the media's videos.
func (a *Aggregator) UniqueViewers(ctx context.Context, mediaID models.ULID) (int64, error) {
	n, err := a.events.CountDistinctViewersByMedia(ctx, mediaID)
	if err != nil {
		return 0, fmt.Errorf("%w: counting viewers: %w", models.ErrUpstream, err)
	}
	return n, nil
}

// UniqueViewersBatch is UniqueViewers for several media; absent media have
// zero viewers.
func (a *Aggregator) UniqueViewersBatch(ctx context.Context, mediaIDs []models.ULID) (map[models.ULID]int64, error) {
	counts, err := a.events.CountDistinctViewers(ctx, mediaIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: counting viewers: %w", models.ErrUpstream, err)
	}
	return counts, nil
}

// LastWatched returns one page of the user's events, most recent first with
// ties broken by video ID.
func (a *Aggregator) LastWatched(ctx context.Context, userID models.ULID, page, size int) (*models.Page[models.WatchEntry], error) {
	events, total, err := a.events.FindByUser(ctx, userID, page, size)
	if err != nil {
		return nil, fmt.Errorf("%w: listing watch events: %w", models.ErrUpstream, err)
	}

	entries := make([]models.WatchEntry, 0, len(events))
	for _, e := range events {
		entry := models.WatchEntry{
			VideoID:       e.VideoID,
			MediaID:       e.MediaID,
			Timestamp:     e.Timestamp,
			LastWatchedAt: e.LastWatchedAt,
		}
		if e.Video != nil {
			entry.VideoName = e.Video.Name
			entry.Season = e.Video.Season
			entry.Index = e.Video.Index
		}
		entries = append(entries, entry)
	}

	return &models.Page[models.WatchEntry]{
		Items:      entries,
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: models.TotalPagesFor(total, size),
	}, nil
}

// ContinueWatching returns one entry per media the user has touched,
// carrying the latest activity among its videos, most recent first with
// ties broken by media ID.
func (a *Aggregator) ContinueWatching(ctx context.Context, userID models.ULID) ([]models.MediaActivity, error) {
	touched, err := a.events.FindDistinctMediaTouchedByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing touched media: %w", models.ErrUpstream, err)
	}
	if touched == nil {
		touched = []models.MediaActivity{}
	}
	return touched, nil
}

// UnwatchedCount is the number of media the user has no events on.
func (a *Aggregator) UnwatchedCount(ctx context.Context, userID models.ULID) (int64, error) {
	total, err := a.media.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: counting media: %w", models.ErrUpstream, err)
	}
	touched, err := a.events.FindDistinctMediaTouchedByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: listing touched media: %w", models.ErrUpstream, err)
	}
	return max(total-int64(len(touched)), 0), nil
}

// Record stores a playback report at the current instant.
func (a *Aggregator) Record(ctx context.Context, userID, videoID models.ULID, timestamp int64) (*models.WatchEvent, error) {
	switch {
	case userID.IsZero():
		return nil, models.ErrUserIDRequired
	case videoID.IsZero():
		return nil, models.ErrVideoIDRequired
	case timestamp < 0:
		return nil, models.ErrInvalidPlaybackTimestamp
	}

	event, err := a.events.Upsert(ctx, userID, videoID, timestamp, a.now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrInvalidInput) {
			return nil, fmt.Errorf("recording watch event: %w", err)
		}
		return nil, fmt.Errorf("%w: recording watch event: %w", models.ErrUpstream, err)
	}
	a.logger.DebugContext(ctx, "watch event recorded",
		slog.String("user_id", userID.String()),
		slog.String("video_id", videoID.String()),
		slog.Int64("timestamp", timestamp),
	)
	return event, nil
}
