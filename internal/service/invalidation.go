package service

import (
	"context"
	"log/slog"
	"slices"

	"github.com/jmylchreest/mediarr/internal/authz"
	"github.com/jmylchreest/mediarr/internal/cache"
	"github.com/jmylchreest/mediarr/internal/models"
)

// Invalidation scopes per write class. Listing pages are not addressable
// by media id, so any write that can change a listed summary flushes the
// whole listing region.

func createScope() cache.Scope {
	return cache.Scope{
		Flush: []cache.Region{cache.RegionAllMediaListing, cache.RegionCatalogSnapshot},
	}
}

func updateScope(id models.ULID) cache.Scope {
	return cache.Scope{
		Evict: []cache.Target{{Region: cache.RegionMediaByID, Key: cache.MediaKey(id)}},
		Flush: []cache.Region{cache.RegionAllMediaListing, cache.RegionCatalogSnapshot},
	}
}

func deleteScope(id models.ULID) cache.Scope {
	return cache.Scope{
		Evict: []cache.Target{{Region: cache.RegionMediaByID, Key: cache.MediaKey(id)}},
		Flush: []cache.Region{
			cache.RegionAllMediaListing,
			cache.RegionCatalogSnapshot,
			cache.RegionBestRated,
			cache.RegionMostWatched,
			cache.RegionLastWatched,
		},
	}
}

// feedbackScope covers rating and review writes.
func feedbackScope(id models.ULID) cache.Scope {
	return cache.Scope{
		Evict: []cache.Target{{Region: cache.RegionMediaByID, Key: cache.MediaKey(id)}},
		Flush: []cache.Region{cache.RegionAllMediaListing, cache.RegionCatalogSnapshot, cache.RegionBestRated},
	}
}

// watchScope is applied by FlushWatchViews, not per event. The snapshot
// carries viewer counts, so it is outdated with the rankings.
func watchScope() cache.Scope {
	return cache.Scope{
		Flush: []cache.Region{cache.RegionMostWatched, cache.RegionLastWatched, cache.RegionCatalogSnapshot},
	}
}

// invalidate applies scope and, when the snapshot is affected, outdates the
// published snapshot and optionally schedules a rebuild.
func (s *CatalogService) invalidate(ctx context.Context, scope cache.Scope) {
	s.cache.Apply(scope)
	if !slices.Contains(scope.Flush, cache.RegionCatalogSnapshot) {
		return
	}
	s.builder.Invalidate()
	if s.cfg.RebuildOnWrite {
		s.scheduleRebuild(ctx)
	}
}

func (s *CatalogService) scheduleRebuild(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	s.rebuilds.Add(1)
	go func() {
		defer s.rebuilds.Done()
		if _, err := s.builder.Build(ctx); err != nil {
			s.logger.WarnContext(ctx, "background snapshot rebuild failed", slog.String("error", err.Error()))
		}
	}()
}

// WaitForRebuilds blocks until scheduled snapshot rebuilds have finished.
func (s *CatalogService) WaitForRebuilds() {
	s.rebuilds.Wait()
}

// RefreshWatchViews flushes the watch-derived ranking regions on behalf of
// an operator.
func (s *CatalogService) RefreshWatchViews(ctx context.Context, p Principal) error {
	if err := s.authz.Check(p.Roles, authz.ActionRefreshViews); err != nil {
		return err
	}
	s.FlushWatchViews(ctx, true)
	return nil
}

// FlushWatchViews flushes mostWatched and lastWatched and outdates the
// catalog snapshot. Unless force is set the flush is skipped when no watch
// event arrived since the last one. Reports whether a flush happened.
func (s *CatalogService) FlushWatchViews(ctx context.Context, force bool) bool {
	dirty := s.watchDirty.Swap(false)
	if !dirty && !force {
		return false
	}
	s.invalidate(ctx, watchScope())
	s.logger.DebugContext(ctx, "watch views flushed", slog.Bool("forced", force))
	return true
}
