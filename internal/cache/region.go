// Package cache provides the named, independently invalidated cache regions
// that front every catalog read path.
//
// A region maps a request fingerprint to an immutable Entry. Entries are
// replaced by pointer swap under the region's lock, so a reader observes
// either the previous entry or the next one, never a partial value. There is
// no TTL: entries live until evicted by a write or flushed.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Region names an independent cache namespace.
type Region string

// Defined regions.
const (
	// RegionMediaByID holds single-media summaries keyed by MediaKey.
	RegionMediaByID Region = "mediaById"

	// RegionAllMediaListing holds listing pages keyed by PageKey.
	RegionAllMediaListing Region = "allMediaListing"

	// RegionBestRated holds best-rated ranking pages.
	RegionBestRated Region = "bestRated"

	// RegionMostWatched holds most-watched ranking pages. Refreshed lazily.
	RegionMostWatched Region = "mostWatched"

	// RegionLastWatched holds last-watched ranking pages. Refreshed lazily.
	RegionLastWatched Region = "lastWatched"

	// RegionCatalogSnapshot holds the published catalog snapshot.
	RegionCatalogSnapshot Region = "catalogSnapshot"
)

// AllRegions returns every defined region in a stable order.
func AllRegions() []Region {
	return []Region{
		RegionMediaByID,
		RegionAllMediaListing,
		RegionBestRated,
		RegionMostWatched,
		RegionLastWatched,
		RegionCatalogSnapshot,
	}
}

// Entry is a cached value and the instant it was computed.
// Entries are never mutated after they are stored.
type Entry struct {
	Value      any
	ComputedAt time.Time
}

// Stats is a point-in-time view of one region's counters.
type Stats struct {
	Region    Region `json:"region"`
	Entries   int    `json:"entries"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// store is the state of one region.
type store struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	// epoch advances on every eviction so an in-flight load started before
	// the eviction does not repopulate the region with the old state.
	epoch uint64

	group singleflight.Group

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

func newStore() *store {
	return &store{entries: make(map[string]*Entry)}
}

func (s *store) get(key string) (*Entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	return e, ok
}

func (s *store) currentEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

func (s *store) put(key string, e *Entry) int {
	s.mu.Lock()
	s.entries[key] = e
	n := len(s.entries)
	s.mu.Unlock()
	return n
}

// putIfEpoch stores e only if no eviction happened since epoch was read.
func (s *store) putIfEpoch(key string, e *Entry, epoch uint64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return len(s.entries), false
	}
	s.entries[key] = e
	return len(s.entries), true
}

func (s *store) evict(key string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	_, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	return len(s.entries), ok
}

func (s *store) evictAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	n := len(s.entries)
	s.entries = make(map[string]*Entry)
	return n
}

func (s *store) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
