package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/mediarr/internal/cache"
	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/jmylchreest/mediarr/internal/observability"
	"golang.org/x/sync/singleflight"
)

// PageFetcher returns one page of the media listing.
type PageFetcher interface {
	FetchPage(ctx context.Context, page, size int) (*models.Page[models.MediaSummary], error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, page, size int) (*models.Page[models.MediaSummary], error)

// FetchPage calls f.
func (f PageFetcherFunc) FetchPage(ctx context.Context, page, size int) (*models.Page[models.MediaSummary], error) {
	return f(ctx, page, size)
}

// Snapshot is a complete catalog listing. It is never modified after it is
// published.
type Snapshot struct {
	Items      []models.MediaSummary `json:"items"`
	PageSize   int                   `json:"page_size"`
	Pages      int                   `json:"pages"`
	TotalItems int64                 `json:"total_items"`
	BuiltAt    time.Time             `json:"built_at"`

	// Generation is the builder generation the snapshot was started in.
	Generation uint64 `json:"generation"`
}

// Builder assembles and publishes snapshots.
type Builder struct {
	fetcher  PageFetcher
	pageSize int
	cache    *cache.Manager
	logger   *slog.Logger

	group      singleflight.Group
	generation atomic.Uint64

	publishMu sync.Mutex
	current   atomic.Pointer[Snapshot]
}

// NewBuilder creates a builder that requests pages of pageSize items.
func NewBuilder(fetcher PageFetcher, pageSize int) *Builder {
	if pageSize < 1 {
		pageSize = 1
	}
	return &Builder{
		fetcher:  fetcher,
		pageSize: pageSize,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the builder.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = observability.WithComponent(logger, "catalog_builder")
	return b
}

// WithCache publishes snapshots into the catalogSnapshot region as well.
func (b *Builder) WithCache(m *cache.Manager) *Builder {
	b.cache = m
	return b
}

// PageSize returns the configured page size.
func (b *Builder) PageSize() int {
	return b.pageSize
}

// Invalidate marks the published snapshot as outdated. Builds already
// running are not cancelled; the next Build starts a fresh run instead of
// joining them.
func (b *Builder) Invalidate() {
	b.generation.Add(1)
}

// Generation returns the current generation.
func (b *Builder) Generation() uint64 {
	return b.generation.Load()
}

// Current returns the last published snapshot, or nil.
func (b *Builder) Current() *Snapshot {
	return b.current.Load()
}

// Snapshot returns the published snapshot if it is current, otherwise it
// builds a new one.
func (b *Builder) Snapshot(ctx context.Context) (*Snapshot, error) {
	if snap := b.current.Load(); snap != nil && snap.Generation == b.generation.Load() {
		return snap, nil
	}
	return b.Build(ctx)
}

// Build runs a snapshot build, joining one already running for the current
// generation. On failure nothing is published and the error wraps
// models.ErrBuildAborted.
//
// The build is shared, so it ignores the cancellation of whichever caller
// started it. A caller whose ctx ends first returns early with an aborted
// error and the build completes for the remaining callers.
func (b *Builder) Build(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrBuildAborted, err)
	}
	gen := b.generation.Load()
	buildCtx := context.WithoutCancel(ctx)
	ch := b.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return b.build(buildCtx, gen)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", models.ErrBuildAborted, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (b *Builder) build(ctx context.Context, gen uint64) (snap *Snapshot, err error) {
	done := observability.TimedOperationWithError(ctx, b.logger, "build_snapshot", &err)
	defer done()

	it := NewPageIterator()
	seen := make(map[models.ULID]struct{})
	var items []models.MediaSummary
	var total int64
	visited := 0

	for page, ok := it.Next(); ok; page, ok = it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrBuildAborted, err)
		}
		p, err := b.fetcher.FetchPage(ctx, page, b.pageSize)
		if err != nil {
			return nil, fmt.Errorf("%w: fetching page %d: %w", models.ErrBuildAborted, page, err)
		}
		if visited == 0 {
			total = p.TotalItems
		}
		it.Observe(p.TotalPages)
		visited++

		// Inserts between page fetches shift later pages by one item.
		for _, item := range p.Items {
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			items = append(items, item)
		}
	}

	if items == nil {
		items = []models.MediaSummary{}
	}
	snap = &Snapshot{
		Items:      items,
		PageSize:   b.pageSize,
		Pages:      visited,
		TotalItems: total,
		BuiltAt:    time.Now().UTC(),
		Generation: gen,
	}

	if b.publish(snap) {
		b.logger.InfoContext(ctx, "snapshot published",
			slog.Int("pages", snap.Pages),
			slog.Int("items", len(snap.Items)),
			slog.Uint64("generation", gen),
		)
	}
	return snap, nil
}

// publish swaps in snap unless a snapshot from a later generation is
// already published.
func (b *Builder) publish(snap *Snapshot) bool {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	if cur := b.current.Load(); cur != nil && cur.Generation > snap.Generation {
		return false
	}
	b.current.Store(snap)
	if b.cache != nil {
		b.cache.Put(cache.RegionCatalogSnapshot, cache.SnapshotKey, snap)
	}
	return true
}
