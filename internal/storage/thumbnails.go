package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/jmylchreest/mediarr/internal/observability"
)

// allowedThumbnailExts are the accepted upload extensions.
var allowedThumbnailExts = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
}

// ErrInvalidThumbnail is the validation error for rejected uploads.
var ErrInvalidThumbnail = models.ErrValidation{Field: "thumbnail", Message: "must be a png, jpg or jpeg file"}

// ValidateThumbnailFilename checks the extension of an uploaded file name.
func ValidateThumbnailFilename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return models.ErrValidation{Field: "thumbnail", Message: "thumbnail is required"}
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedThumbnailExts[ext]; !ok {
		return ErrInvalidThumbnail
	}
	return nil
}

// ThumbnailStore stores media thumbnails in a sandboxed directory.
type ThumbnailStore struct {
	sandbox *Sandbox
	maxSize int64
	logger  *slog.Logger
}

// NewThumbnailStore creates a store rooted at dir. Uploads larger than
// maxSize bytes are rejected; maxSize <= 0 disables the limit.
func NewThumbnailStore(dir string, maxSize int64) (*ThumbnailStore, error) {
	sb, err := NewSandbox(dir)
	if err != nil {
		return nil, fmt.Errorf("opening thumbnail directory: %w", err)
	}
	return &ThumbnailStore{sandbox: sb, maxSize: maxSize, logger: slog.Default()}, nil
}

// WithLogger sets the logger for the store.
func (s *ThumbnailStore) WithLogger(logger *slog.Logger) *ThumbnailStore {
	s.logger = observability.WithComponent(logger, "thumbnails")
	return s
}

// Dir returns the absolute thumbnail directory.
func (s *ThumbnailStore) Dir() string {
	return s.sandbox.BaseDir()
}

// Save writes the thumbnail under name, replacing any existing file.
func (s *ThumbnailStore) Save(ctx context.Context, name string, r io.Reader) (int64, error) {
	if name != filepath.Base(name) {
		return 0, fmt.Errorf("%w: %s", ErrPathEscapes, name)
	}

	n, err := s.sandbox.AtomicWriteReader(name, r, s.maxSize)
	if errors.Is(err, ErrTooLarge) {
		return n, models.ErrValidation{
			Field:   "thumbnail",
			Message: "must not exceed " + humanize.IBytes(uint64(s.maxSize)),
		}
	}
	if err != nil {
		return n, fmt.Errorf("saving thumbnail %s: %w", name, err)
	}

	s.logger.DebugContext(ctx, "thumbnail saved",
		slog.String("name", name),
		slog.String("size", humanize.IBytes(uint64(n))),
	)
	return n, nil
}

// Exists reports whether a thumbnail is stored under name.
func (s *ThumbnailStore) Exists(name string) (bool, error) {
	return s.sandbox.Exists(name)
}

// Open opens a stored thumbnail.
func (s *ThumbnailStore) Open(name string) (io.ReadCloser, error) {
	return s.sandbox.Open(name)
}

// Delete removes a stored thumbnail. A missing file is not an error.
func (s *ThumbnailStore) Delete(name string) error {
	if name == "" {
		return nil
	}
	return s.sandbox.Remove(name)
}
