package cache

import (
	"fmt"
	"strings"

	"github.com/jmylchreest/mediarr/internal/models"
)

// SnapshotKey is the single key of RegionCatalogSnapshot.
const SnapshotKey = "all"

// MediaKey is the fingerprint of a single-media lookup.
func MediaKey(id models.ULID) string {
	return id.String()
}

// PageKey is the fingerprint of a paginated request. Search is matched
// case-insensitively so it is normalised before use.
type PageKey struct {
	Page     int
	Size     int
	Search   string
	Complete bool
}

// String renders the key.
func (k PageKey) String() string {
	return fmt.Sprintf("page=%d|size=%d|search=%s|complete=%t",
		k.Page, k.Size, strings.ToLower(strings.TrimSpace(k.Search)), k.Complete)
}
