package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmylchreest/mediarr/internal/observability"
)

// Loader computes the value for a cache miss.
type Loader func(ctx context.Context) (any, error)

// Manager owns the cache regions. The region set is fixed at construction
// and every method is safe for concurrent use.
type Manager struct {
	regions map[Region]*store
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewManager creates a manager with every region from AllRegions.
func NewManager() *Manager {
	m := &Manager{
		regions: make(map[Region]*store, len(AllRegions())),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, r := range AllRegions() {
		m.regions[r] = newStore()
	}
	return m
}

// WithLogger sets the logger for the manager.
func (m *Manager) WithLogger(logger *slog.Logger) *Manager {
	m.logger = observability.WithComponent(logger, "cache")
	return m
}

// WithMetrics enables prometheus export.
func (m *Manager) WithMetrics(metrics *Metrics) *Manager {
	m.metrics = metrics
	for r, s := range m.regions {
		metrics.size(r, s.len())
	}
	return m
}

func (m *Manager) region(r Region) *store {
	s, ok := m.regions[r]
	if !ok {
		panic(fmt.Sprintf("cache: unknown region %q", r))
	}
	return s
}

// Get returns the cached value for key.
func (m *Manager) Get(r Region, key string) (any, bool) {
	s := m.region(r)
	e, ok := s.get(key)
	if !ok {
		s.misses.Add(1)
		m.metrics.miss(r)
		return nil, false
	}
	s.hits.Add(1)
	m.metrics.hit(r)
	return e.Value, true
}

// Entry returns the cached entry for key without touching the counters.
func (m *Manager) Entry(r Region, key string) (*Entry, bool) {
	return m.region(r).get(key)
}

// Put stores value under key, replacing any previous entry.
func (m *Manager) Put(r Region, key string, value any) {
	n := m.region(r).put(key, &Entry{Value: value, ComputedAt: m.now()})
	m.metrics.size(r, n)
}

// Evict removes key from the region.
func (m *Manager) Evict(r Region, key string) {
	s := m.region(r)
	n, removed := s.evict(key)
	if removed {
		s.evictions.Add(1)
		m.metrics.evicted(r, 1)
	}
	m.metrics.size(r, n)
	m.logger.Debug("cache entry evicted",
		slog.String("region", string(r)),
		slog.String("key", key),
		slog.Bool("present", removed),
	)
}

// EvictAll flushes every entry of the region. Other regions are untouched.
func (m *Manager) EvictAll(r Region) {
	s := m.region(r)
	n := s.evictAll()
	s.evictions.Add(uint64(n))
	m.metrics.evicted(r, n)
	m.metrics.size(r, 0)
	m.logger.Debug("cache region flushed",
		slog.String("region", string(r)),
		slog.Int("entries", n),
	)
}

// GetOrLoad returns the cached value for key, or calls load on a miss.
// Concurrent misses for the same key share one load. A failed load is
// returned to every waiter and nothing is cached. A load that overlaps an
// eviction in the same region returns its value without caching it.
//
// The shared load runs detached from the caller's cancellation, so one
// caller giving up does not fail the others. A caller whose ctx ends first
// gets ctx.Err() while the load carries on for the rest.
func (m *Manager) GetOrLoad(ctx context.Context, r Region, key string, load Loader) (any, error) {
	if v, ok := m.Get(r, key); ok {
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := m.region(r)
	epoch := s.currentEpoch()
	flightKey := strconv.FormatUint(epoch, 10) + "|" + key
	loadCtx := context.WithoutCancel(ctx)

	ch := s.group.DoChan(flightKey, func() (any, error) {
		start := m.now()
		value, err := load(loadCtx)
		m.metrics.loaded(r, m.now().Sub(start))
		if err != nil {
			m.metrics.loadFailed(r)
			return nil, err
		}
		n, stored := s.putIfEpoch(key, &Entry{Value: value, ComputedAt: m.now()}, epoch)
		m.metrics.size(r, n)
		if !stored {
			m.logger.Debug("cache load superseded by eviction",
				slog.String("region", string(r)),
				slog.String("key", key),
			)
		}
		return value, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			m.logger.Debug("cache load shared",
				slog.String("region", string(r)),
				slog.String("key", key),
			)
		}
		return res.Val, nil
	}
}

// Load is the typed form of GetOrLoad.
func Load[T any](ctx context.Context, m *Manager, r Region, key string, load func(ctx context.Context) (T, error)) (T, error) {
	v, err := m.GetOrLoad(ctx, r, key, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache: region %s key %s holds %T", r, key, v)
	}
	return typed, nil
}

// Stats returns the counters of one region.
func (m *Manager) Stats(r Region) Stats {
	s := m.region(r)
	return Stats{
		Region:    r,
		Entries:   s.len(),
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
	}
}

// AllStats returns the counters of every region in AllRegions order.
func (m *Manager) AllStats() []Stats {
	regions := AllRegions()
	out := make([]Stats, len(regions))
	for i, r := range regions {
		out[i] = m.Stats(r)
	}
	return out
}

// Target addresses one entry of a region.
type Target struct {
	Region Region
	Key    string
}

// Scope is the set of cache entries a write invalidates.
type Scope struct {
	Evict []Target
	Flush []Region
}

// Apply evicts every target and flushes every region in the scope.
func (m *Manager) Apply(scope Scope) {
	for _, t := range scope.Evict {
		m.Evict(t.Region, t.Key)
	}
	for _, r := range scope.Flush {
		m.EvictAll(r)
	}
}
