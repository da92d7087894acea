package handlers

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/mediarr/internal/observability"
	"github.com/jmylchreest/mediarr/internal/storage"
)

// ThumbnailOpener reads stored thumbnails.
type ThumbnailOpener interface {
	Open(name string) (io.ReadCloser, error)
}

// ThumbnailHandler serves stored thumbnail images.
type ThumbnailHandler struct {
	store  ThumbnailOpener
	logger *slog.Logger
}

// NewThumbnailHandler creates a new thumbnail handler.
func NewThumbnailHandler(store ThumbnailOpener) *ThumbnailHandler {
	return &ThumbnailHandler{store: store, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (h *ThumbnailHandler) WithLogger(logger *slog.Logger) *ThumbnailHandler {
	h.logger = observability.WithComponent(logger, "thumbnail_handler")
	return h
}

// RegisterFileServer serves thumbnails at /thumbnails/{name}.
func (h *ThumbnailHandler) RegisterFileServer(router chi.Router) {
	router.Get("/thumbnails/{name}", h.ServeThumbnail)
	router.Head("/thumbnails/{name}", h.ServeThumbnail)
}

// ServeThumbnail writes a thumbnail file.
func (h *ThumbnailHandler) ServeThumbnail(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || strings.ContainsAny(name, `/\`) {
		http.Error(w, "invalid thumbnail name", http.StatusBadRequest)
		return
	}

	file, err := h.store.Open(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		http.Error(w, "thumbnail not found", http.StatusNotFound)
		return
	case errors.Is(err, storage.ErrPathEscapes):
		http.Error(w, "invalid thumbnail name", http.StatusBadRequest)
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "failed to open thumbnail",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "failed to read thumbnail", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	contentType := "image/jpeg"
	if strings.EqualFold(filepath.Ext(name), ".png") {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, file); err != nil {
		h.logger.DebugContext(r.Context(), "thumbnail write interrupted", slog.String("error", err.Error()))
	}
}
