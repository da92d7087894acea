package scheduler

import (
	"context"
	"log/slog"
)

// Job names.
const (
	JobRefreshWatchViews = "refresh_watch_views"
	JobRebuildSnapshot   = "rebuild_snapshot"
)

// WatchViewFlusher flushes the watch-derived cache regions.
type WatchViewFlusher interface {
	FlushWatchViews(ctx context.Context, force bool) bool
}

// RefreshWatchViews returns a job that flushes the most-watched and
// last-watched rankings when watch events arrived since the last run.
// This bounds how long those rankings lag the watch log.
func RefreshWatchViews(f WatchViewFlusher, logger *slog.Logger) JobFunc {
	return func(ctx context.Context) error {
		if f.FlushWatchViews(ctx, false) {
			logger.DebugContext(ctx, "watch-derived rankings refreshed")
		}
		return nil
	}
}

// SnapshotWarmer builds a catalog snapshot.
type SnapshotWarmer interface {
	Warm(ctx context.Context) error
}

// SnapshotWarmerFunc adapts a function to SnapshotWarmer.
type SnapshotWarmerFunc func(ctx context.Context) error

// Warm calls f.
func (f SnapshotWarmerFunc) Warm(ctx context.Context) error {
	return f(ctx)
}

// RebuildSnapshot returns a job that rebuilds the catalog snapshot.
func RebuildSnapshot(w SnapshotWarmer) JobFunc {
	return w.Warm
}
