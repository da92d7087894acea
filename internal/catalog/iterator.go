// Package catalog builds the complete in-memory catalog snapshot by paging
// through the media listing.
package catalog

// PageIterator yields zero-based page requests. Page 0 is always yielded;
// the total page count reported by that first page is captured once via
// Observe and bounds the rest of the sequence, so later changes to the
// catalog size cannot extend or truncate an iteration in progress.
//
// A PageIterator is not safe for concurrent use.
type PageIterator struct {
	next     int
	total    int
	observed bool
}

// NewPageIterator returns an iterator positioned before page 0.
func NewPageIterator() *PageIterator {
	return &PageIterator{}
}

// Next returns the next page to request, or false when the sequence is
// exhausted. Before Observe is called only page 0 is yielded.
func (it *PageIterator) Next() (int, bool) {
	if it.next == 0 {
		it.next = 1
		return 0, true
	}
	if !it.observed || it.next >= it.total {
		return 0, false
	}
	page := it.next
	it.next++
	return page, true
}

// Observe records the total page count reported by a fetched page. Only
// the first call has an effect.
func (it *PageIterator) Observe(totalPages int) {
	if it.observed {
		return
	}
	it.observed = true
	it.total = max(totalPages, 0)
}

// Total returns the captured total page count (0 before Observe).
func (it *PageIterator) Total() int {
	return it.total
}

// Reset rewinds the iterator so it can be reused for a new build.
func (it *PageIterator) Reset() {
	*it = PageIterator{}
}
