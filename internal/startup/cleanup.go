// Package startup provides housekeeping tasks run before mediarr serves
// requests.
package startup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/mediarr/internal/models"
)

// DefaultCleanupAge is the default maximum age for orphaned upload temp files.
const DefaultCleanupAge = 1 * time.Hour

// mediaScanPageSize is the page size used when collecting referenced thumbnails.
const mediaScanPageSize = 200

// isUploadTempFile reports whether name looks like a partial upload written
// by the thumbnail sandbox (".<target>.<hex>.tmp").
func isUploadTempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp")
}

// CleanupOrphanedUploads removes partial thumbnail uploads older than maxAge
// from dir. These are left behind when the process dies mid-write.
//
// Returns the number of files removed and any error encountered.
func CleanupOrphanedUploads(logger *slog.Logger, dir string, maxAge time.Duration) (int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("thumbnail directory does not exist, skipping cleanup",
			"path", dir,
		)
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Error("failed to read directory for cleanup",
			"path", dir,
			"error", err,
		)
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int

	for _, entry := range entries {
		if entry.IsDir() || !isUploadTempFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			logger.Warn("failed to get file info",
				"path", path,
				"error", err,
			)
			continue
		}

		if info.ModTime().After(cutoff) {
			logger.Debug("preserving recent upload temp file",
				"path", path,
				"age", time.Since(info.ModTime()).Round(time.Second),
			)
			continue
		}

		if err := os.Remove(path); err != nil {
			logger.Warn("failed to remove orphaned upload",
				"path", path,
				"error", err,
			)
			continue
		}

		logger.Info("removed orphaned upload",
			"path", path,
			"age", time.Since(info.ModTime()).Round(time.Second),
		)
		removed++
	}

	return removed, nil
}

// MediaPager pages through the stored media.
type MediaPager interface {
	FindPage(ctx context.Context, page, size int, search string) ([]*models.Media, int64, error)
}

// RemoveUnreferencedThumbnails deletes thumbnail files in dir that no media
// row points at. A create whose compensation failed, or a crash between the
// thumbnail write and the row insert, leaves such files behind. It must run
// before the server accepts writes.
//
// Returns the number of files removed and any error encountered.
func RemoveUnreferencedThumbnails(ctx context.Context, logger *slog.Logger, dir string, media MediaPager) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	referenced := make(map[string]struct{})
	for page := 0; ; page++ {
		items, _, err := media.FindPage(ctx, page, mediaScanPageSize, "")
		if err != nil {
			logger.Error("failed to list media for thumbnail sweep",
				"page", page,
				"error", err,
			)
			return 0, err
		}
		for _, m := range items {
			if m.Thumbnail != "" {
				referenced[m.Thumbnail] = struct{}{}
			}
		}
		if len(items) < mediaScanPageSize {
			break
		}
	}

	var removed int
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || isUploadTempFile(name) {
			continue
		}
		if _, ok := referenced[name]; ok {
			continue
		}

		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			logger.Warn("failed to remove unreferenced thumbnail",
				"name", name,
				"error", err,
			)
			continue
		}
		logger.Info("removed unreferenced thumbnail", "name", name)
		removed++
	}

	return removed, nil
}
