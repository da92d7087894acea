// Package service orchestrates the catalog: reads go through the cache
// regions, writes go to the persistence gateway and then evict the regions
// they affect.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/jmylchreest/mediarr/internal/authz"
	"github.com/jmylchreest/mediarr/internal/cache"
	"github.com/jmylchreest/mediarr/internal/catalog"
	"github.com/jmylchreest/mediarr/internal/config"
	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/jmylchreest/mediarr/internal/observability"
	"github.com/jmylchreest/mediarr/internal/repository"
	"github.com/jmylchreest/mediarr/internal/watch"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Repositories bundles the persistence gateway used by the service.
type Repositories struct {
	Media   repository.MediaRepository
	Videos  repository.VideoRepository
	Genres  repository.GenreRepository
	Actors  repository.ActorRepository
	Users   repository.UserRepository
	Ratings repository.RatingRepository
	Reviews repository.ReviewRepository
	Watch   repository.WatchEventRepository
}

// NewGormRepositories builds every repository on db.
func NewGormRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Media:   repository.NewMediaRepository(db),
		Videos:  repository.NewVideoRepository(db),
		Genres:  repository.NewGenreRepository(db),
		Actors:  repository.NewActorRepository(db),
		Users:   repository.NewUserRepository(db),
		Ratings: repository.NewRatingRepository(db),
		Reviews: repository.NewReviewRepository(db),
		Watch:   repository.NewWatchEventRepository(db),
	}
}

// ThumbnailStore persists thumbnail images.
type ThumbnailStore interface {
	Save(ctx context.Context, name string, r io.Reader) (int64, error)
	Delete(name string) error
}

// Principal is the authenticated caller of a write.
type Principal struct {
	UserID models.ULID
	Roles  models.Roles
}

// CatalogService answers catalog reads and applies catalog writes.
type CatalogService struct {
	repos   Repositories
	cache   *cache.Manager
	builder *catalog.Builder
	watch   *watch.Aggregator
	authz   *authz.Authorizer
	thumbs  ThumbnailStore
	cfg     config.CatalogConfig
	logger  *slog.Logger

	// watchDirty is set by RecordWatch and cleared when the watch-derived
	// regions are flushed.
	watchDirty atomic.Bool
	rebuilds   sync.WaitGroup
}

// NewCatalogService creates a catalog service.
func NewCatalogService(repos Repositories, cacheManager *cache.Manager, thumbs ThumbnailStore, cfg config.CatalogConfig) *CatalogService {
	if cfg.DefaultPageSize < 1 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = cfg.DefaultPageSize
	}
	if cfg.SnapshotPageSize < 1 {
		cfg.SnapshotPageSize = 30
	}

	s := &CatalogService{
		repos:  repos,
		cache:  cacheManager,
		watch:  watch.NewAggregator(repos.Watch, repos.Media),
		authz:  authz.Default(),
		thumbs: thumbs,
		cfg:    cfg,
		logger: slog.Default(),
	}
	s.builder = catalog.NewBuilder(catalog.PageFetcherFunc(s.FetchPage), cfg.SnapshotPageSize).WithCache(cacheManager)
	return s
}

// WithLogger sets the logger for the service and its components.
func (s *CatalogService) WithLogger(logger *slog.Logger) *CatalogService {
	s.logger = observability.WithComponent(logger, "catalog_service")
	s.builder.WithLogger(logger)
	s.watch.WithLogger(logger)
	return s
}

// WithAuthorizer replaces the default role policy.
func (s *CatalogService) WithAuthorizer(a *authz.Authorizer) *CatalogService {
	s.authz = a
	return s
}

// Builder returns the snapshot builder.
func (s *CatalogService) Builder() *catalog.Builder {
	return s.builder
}

// Cache returns the cache manager.
func (s *CatalogService) Cache() *cache.Manager {
	return s.cache
}

// ListQuery selects one page of the media listing.
type ListQuery struct {
	Page     int
	Size     int
	Search   string
	Complete bool
}

// GetMedia returns the full summary of one media. The unique viewer count
// is read live; everything else comes from the mediaById region.
func (s *CatalogService) GetMedia(ctx context.Context, id models.ULID) (*models.MediaSummary, error) {
	if id.IsZero() {
		return nil, models.ErrMediaIDRequired
	}
	cached, err := cache.Load(ctx, s.cache, cache.RegionMediaByID, cache.MediaKey(id), func(ctx context.Context) (*models.MediaSummary, error) {
		return s.loadMedia(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	viewers, err := s.watch.UniqueViewers(ctx, id)
	if err != nil {
		return nil, err
	}
	out := *cached
	out.UniqueViewers = viewers
	return &out, nil
}

func (s *CatalogService) loadMedia(ctx context.Context, id models.ULID) (*models.MediaSummary, error) {
	m, err := s.repos.Media.GetByID(ctx, id)
	if err != nil {
		return nil, upstream("loading media", err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: media %s", models.ErrNotFound, id)
	}
	summary := models.Summarize(m, true)
	items := []models.MediaSummary{summary}
	if err := s.enrich(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// ListMedia returns one page of the catalog ordered by name.
func (s *CatalogService) ListMedia(ctx context.Context, q ListQuery) (*models.Page[models.MediaSummary], error) {
	size, err := s.pageSize(q.Page, q.Size)
	if err != nil {
		return nil, err
	}
	q.Size = size
	page, err := s.listPage(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.withLiveViewers(ctx, page)
}

// FetchPage serves the snapshot builder. The page size is used as given.
func (s *CatalogService) FetchPage(ctx context.Context, page, size int) (*models.Page[models.MediaSummary], error) {
	p, err := s.listPage(ctx, ListQuery{Page: page, Size: size})
	if err != nil {
		return nil, err
	}
	return s.withLiveViewers(ctx, p)
}

// withLiveViewers returns a copy of a cached listing page with unique
// viewer counts read live, as GetMedia does. Listing pages are not flushed
// by watch events, so the cached counts are only a starting value.
func (s *CatalogService) withLiveViewers(ctx context.Context, page *models.Page[models.MediaSummary]) (*models.Page[models.MediaSummary], error) {
	out := *page
	if len(page.Items) == 0 {
		return &out, nil
	}
	ids := make([]models.ULID, len(page.Items))
	for i := range page.Items {
		ids[i] = page.Items[i].ID
	}
	viewers, err := s.watch.UniqueViewersBatch(ctx, ids)
	if err != nil {
		return nil, err
	}
	out.Items = slices.Clone(page.Items)
	for i := range out.Items {
		out.Items[i].UniqueViewers = viewers[out.Items[i].ID]
	}
	return &out, nil
}

func (s *CatalogService) listPage(ctx context.Context, q ListQuery) (*models.Page[models.MediaSummary], error) {
	key := cache.PageKey{Page: q.Page, Size: q.Size, Search: q.Search, Complete: q.Complete}
	return cache.Load(ctx, s.cache, cache.RegionAllMediaListing, key.String(), func(ctx context.Context) (*models.Page[models.MediaSummary], error) {
		media, total, err := s.repos.Media.FindPage(ctx, q.Page, q.Size, q.Search)
		if err != nil {
			return nil, upstream("listing media", err)
		}
		return s.summaryPage(ctx, media, total, q.Page, q.Size, q.Complete)
	})
}

// BestRated returns media ordered by average rating.
func (s *CatalogService) BestRated(ctx context.Context, page, size int) (*models.Page[models.MediaSummary], error) {
	return s.ranking(ctx, cache.RegionBestRated, page, size, s.repos.Media.FindBestRated)
}

// MostWatched returns media ordered by distinct viewer count. Results may
// lag recent watch events until the region is refreshed.
func (s *CatalogService) MostWatched(ctx context.Context, page, size int) (*models.Page[models.MediaSummary], error) {
	return s.ranking(ctx, cache.RegionMostWatched, page, size, s.repos.Media.FindMostWatched)
}

// LastWatchedMedia returns media ordered by their latest watch activity
// across all users. Refreshed lazily like MostWatched.
func (s *CatalogService) LastWatchedMedia(ctx context.Context, page, size int) (*models.Page[models.MediaSummary], error) {
	return s.ranking(ctx, cache.RegionLastWatched, page, size, s.repos.Media.FindLastWatched)
}

type rankFinder func(ctx context.Context, page, size int) ([]*models.Media, int64, error)

func (s *CatalogService) ranking(ctx context.Context, region cache.Region, page, size int, find rankFinder) (*models.Page[models.MediaSummary], error) {
	size, err := s.pageSize(page, size)
	if err != nil {
		return nil, err
	}
	key := cache.PageKey{Page: page, Size: size}
	return cache.Load(ctx, s.cache, region, key.String(), func(ctx context.Context) (*models.Page[models.MediaSummary], error) {
		media, total, err := find(ctx, page, size)
		if err != nil {
			return nil, upstream("loading "+string(region), err)
		}
		return s.summaryPage(ctx, media, total, page, size, false)
	})
}

// AllMedia returns the complete catalog snapshot, building one when the
// published snapshot is missing or outdated.
func (s *CatalogService) AllMedia(ctx context.Context) (*catalog.Snapshot, error) {
	if v, ok := s.cache.Get(cache.RegionCatalogSnapshot, cache.SnapshotKey); ok {
		if snap, ok := v.(*catalog.Snapshot); ok && snap.Generation == s.builder.Generation() {
			return snap, nil
		}
	}
	return s.builder.Snapshot(ctx)
}

// Warm builds and publishes a fresh snapshot.
func (s *CatalogService) Warm(ctx context.Context) (*catalog.Snapshot, error) {
	return s.builder.Build(ctx)
}

// ListReviews returns one page of a media's reviews, newest first.
func (s *CatalogService) ListReviews(ctx context.Context, mediaID models.ULID, page, size int) (*models.Page[*models.Review], error) {
	size, err := s.pageSize(page, size)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMedia(ctx, mediaID); err != nil {
		return nil, err
	}
	reviews, total, err := s.repos.Reviews.GetByMediaID(ctx, mediaID, page, size)
	if err != nil {
		return nil, upstream("listing reviews", err)
	}
	if reviews == nil {
		reviews = []*models.Review{}
	}
	return &models.Page[*models.Review]{
		Items:      reviews,
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: models.TotalPagesFor(total, size),
	}, nil
}

// UserLastWatched returns one page of the user's watch history.
func (s *CatalogService) UserLastWatched(ctx context.Context, userID models.ULID, page, size int) (*models.Page[models.WatchEntry], error) {
	size, err := s.pageSize(page, size)
	if err != nil {
		return nil, err
	}
	return s.watch.LastWatched(ctx, userID, page, size)
}

// ContinueWatching returns the media the user has started, most recent first.
func (s *CatalogService) ContinueWatching(ctx context.Context, userID models.ULID) ([]models.MediaActivity, error) {
	return s.watch.ContinueWatching(ctx, userID)
}

// UnwatchedCount returns the number of media the user has not touched.
func (s *CatalogService) UnwatchedCount(ctx context.Context, userID models.ULID) (int64, error) {
	return s.watch.UnwatchedCount(ctx, userID)
}

func (s *CatalogService) summaryPage(ctx context.Context, media []*models.Media, total int64, page, size int, complete bool) (*models.Page[models.MediaSummary], error) {
	items := make([]models.MediaSummary, len(media))
	for i, m := range media {
		items[i] = models.Summarize(m, complete)
	}
	if err := s.enrich(ctx, items); err != nil {
		return nil, err
	}
	return &models.Page[models.MediaSummary]{
		Items:      items,
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: models.TotalPagesFor(total, size),
	}, nil
}

// enrich fills the rating and viewer aggregates of items in place.
func (s *CatalogService) enrich(ctx context.Context, items []models.MediaSummary) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]models.ULID, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}

	var (
		stats   map[models.ULID]models.RatingStats
		viewers map[models.ULID]int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = s.repos.Ratings.GetStats(gctx, ids)
		if err != nil {
			return upstream("loading rating stats", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		viewers, err = s.watch.UniqueViewersBatch(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range items {
		if st, ok := stats[items[i].ID]; ok {
			items[i].RatingAverage = st.Average
			items[i].RatingCount = st.Count
		}
		items[i].UniqueViewers = viewers[items[i].ID]
	}
	return nil
}

// pageSize validates page and returns size defaulted and clamped to the
// configured bounds.
func (s *CatalogService) pageSize(page, size int) (int, error) {
	if page < 0 {
		return 0, models.ErrValidation{Field: "page", Message: "must be non-negative"}
	}
	switch {
	case size < 0:
		return 0, models.ErrValidation{Field: "size", Message: "must be non-negative"}
	case size == 0:
		return s.cfg.DefaultPageSize, nil
	case size > s.cfg.MaxPageSize:
		return s.cfg.MaxPageSize, nil
	}
	return size, nil
}

func (s *CatalogService) requireMedia(ctx context.Context, id models.ULID) (*models.Media, error) {
	if id.IsZero() {
		return nil, models.ErrMediaIDRequired
	}
	m, err := s.repos.Media.GetByID(ctx, id)
	if err != nil {
		return nil, upstream("loading media", err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: media %s", models.ErrNotFound, id)
	}
	return m, nil
}
