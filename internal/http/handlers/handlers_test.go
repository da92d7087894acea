package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/mediarr/internal/cache"
	"github.com/jmylchreest/mediarr/internal/config"
	"github.com/jmylchreest/mediarr/internal/http/handlers"
	"github.com/jmylchreest/mediarr/internal/http/middleware"
	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/jmylchreest/mediarr/internal/observability"
	"github.com/jmylchreest/mediarr/internal/service"
	"github.com/jmylchreest/mediarr/internal/storage"
)

const maxThumbnail = 1024

type apiEnv struct {
	router *chi.Mux
	db     *gorm.DB
	svc    *service.CatalogService
	repos  service.Repositories
	thumbs *storage.ThumbnailStore

	admin, critic, viewer *models.User
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Genre{},
		&models.Actor{},
		&models.User{},
		&models.Media{},
		&models.Video{},
		&models.Rating{},
		&models.Review{},
		&models.WatchEvent{},
	))
	return db
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	log := observability.NewDiscardLogger()

	db := setupTestDB(t)
	repos := service.NewGormRepositories(db)
	thumbs, err := storage.NewThumbnailStore(t.TempDir(), maxThumbnail)
	require.NoError(t, err)

	svc := service.NewCatalogService(repos, cache.NewManager().WithLogger(log), thumbs, config.CatalogConfig{
		SnapshotPageSize: 2,
		DefaultPageSize:  10,
		MaxPageSize:      50,
	}).WithLogger(log)

	router := chi.NewRouter()
	router.Use(middleware.Principal(repos.Users, log))
	api := humachi.New(router, huma.DefaultConfig("Test API", "1.0.0"))

	handlers.NewMediaHandler(svc, maxThumbnail).WithLogger(log).Register(api)
	handlers.NewFeedbackHandler(svc).WithLogger(log).Register(api)
	handlers.NewCatalogHandler(svc).WithLogger(log).Register(api)
	handlers.NewWatchHandler(svc).WithLogger(log).Register(api)
	handlers.NewAdminHandler(svc).WithLogger(log).Register(api)
	handlers.NewHealthHandler("1.0.0").WithDB(db).Register(api)
	handlers.NewThumbnailHandler(thumbs).WithLogger(log).RegisterFileServer(router)

	env := &apiEnv{router: router, db: db, svc: svc, repos: repos, thumbs: thumbs}
	env.admin = env.user(t, "admin", models.RoleAdmin)
	env.critic = env.user(t, "critic", models.RoleCritic)
	env.viewer = env.user(t, "viewer", models.RoleUser)
	return env
}

func (e *apiEnv) user(t *testing.T, name string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Username: name, Roles: models.Roles{role}}
	require.NoError(t, e.repos.Users.Create(context.Background(), u))
	return u
}

func (e *apiEnv) do(t *testing.T, as *models.User, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if as != nil {
		req.Header.Set(middleware.UserIDHeader, as.ID.String())
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *apiEnv) doJSON(t *testing.T, as *models.User, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return e.do(t, as, method, path, body, "application/json")
}

func mediaForm(t *testing.T, metadata any, filename, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if metadata != nil {
		data, err := json.Marshal(metadata)
		require.NoError(t, err)
		require.NoError(t, w.WriteField("metadata", string(data)))
	}
	if filename != "" {
		part, err := w.CreateFormFile("thumbnail", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func (e *apiEnv) createMedia(t *testing.T, name string, videos int) models.MediaSummary {
	t.Helper()
	meta := map[string]any{"name": name, "type": "series", "year": 2021}
	var vids []map[string]any
	for i := 0; i < videos; i++ {
		vids = append(vids, map[string]any{"name": fmt.Sprintf("E%d", i+1), "season": 1, "index": i + 1, "duration_seconds": 30})
	}
	if vids != nil {
		meta["videos"] = vids
	}
	body, ct := mediaForm(t, meta, "poster.png", "png-bytes")
	rec := e.do(t, e.admin, http.MethodPost, "/api/v1/media", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.MediaSummary](t, rec)
}

func TestMediaHandler_CreateAndGet(t *testing.T) {
	env := newAPIEnv(t)
	created := env.createMedia(t, "Alpha", 2)

	assert.Equal(t, "Alpha", created.Name)
	assert.Equal(t, "Alpha_2021.jpg", created.Thumbnail)
	assert.Equal(t, 2, created.VideoCount)

	rec := env.do(t, nil, http.MethodGet, "/api/v1/media/"+created.ID.String(), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[models.MediaSummary](t, rec)
	assert.Equal(t, created.ID, got.ID)
	assert.Len(t, got.Videos, 2)

	rec = env.do(t, nil, http.MethodGet, "/thumbnails/"+created.Thumbnail, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
}

func TestMediaHandler_CreateRejections(t *testing.T) {
	env := newAPIEnv(t)
	env.createMedia(t, "Alpha", 0)

	tests := []struct {
		name     string
		as       *models.User
		metadata any
		filename string
		content  string
		status   int
	}{
		{"anonymous", nil, map[string]any{"name": "Beta"}, "a.jpg", "x", http.StatusForbidden},
		{"viewer", env.viewer, map[string]any{"name": "Beta"}, "a.jpg", "x", http.StatusForbidden},
		{"missing metadata", env.admin, nil, "a.jpg", "x", http.StatusBadRequest},
		{"missing thumbnail", env.admin, map[string]any{"name": "Beta"}, "", "", http.StatusBadRequest},
		{"bad extension", env.admin, map[string]any{"name": "Beta"}, "a.gif", "x", http.StatusBadRequest},
		{"oversized thumbnail", env.admin, map[string]any{"name": "Beta"}, "a.jpg", strings.Repeat("x", maxThumbnail+1), http.StatusBadRequest},
		{"duplicate name", env.admin, map[string]any{"name": "Alpha"}, "a.jpg", "x", http.StatusConflict},
		{"unknown genre", env.admin, map[string]any{"name": "Beta", "genre_ids": []string{models.NewULID().String()}}, "a.jpg", "x", http.StatusConflict},
		{"bad type", env.admin, map[string]any{"name": "Beta", "type": "opera"}, "a.jpg", "x", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := mediaForm(t, tt.metadata, tt.filename, tt.content)
			rec := env.do(t, tt.as, http.MethodPost, "/api/v1/media", body, ct)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec := env.do(t, nil, http.MethodGet, "/api/v1/media", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[models.Page[models.MediaSummary]](t, rec)
	assert.Equal(t, int64(1), page.TotalItems)
}

func TestMediaHandler_GetErrors(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, nil, http.MethodGet, "/api/v1/media/not-an-id", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, nil, http.MethodGet, "/api/v1/media/"+models.NewULID().String(), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/media", nil)
	req.Header.Set(middleware.UserIDHeader, "garbage")
	out := httptest.NewRecorder()
	env.router.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
}

func TestMediaHandler_List(t *testing.T) {
	env := newAPIEnv(t)
	for _, name := range []string{"Gamma", "Alpha", "Beta"} {
		env.createMedia(t, name, 1)
	}

	rec := env.do(t, nil, http.MethodGet, "/api/v1/media?page=0&size=2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[models.Page[models.MediaSummary]](t, rec)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Alpha", page.Items[0].Name)
	assert.Equal(t, 2, page.TotalPages)
	assert.Empty(t, page.Items[0].Videos, "simplified by default")

	rec = env.do(t, nil, http.MethodGet, "/api/v1/media?search=amm&complete=true", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[models.Page[models.MediaSummary]](t, rec)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Gamma", page.Items[0].Name)
	assert.Len(t, page.Items[0].Videos, 1)

	rec = env.do(t, nil, http.MethodGet, "/api/v1/media?page=-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMediaHandler_UpdateAndThumbnail(t *testing.T) {
	env := newAPIEnv(t)
	created := env.createMedia(t, "Alpha", 2)
	path := "/api/v1/media/" + created.ID.String()

	rec := env.doJSON(t, env.admin, http.MethodPatch, path, map[string]any{"year": 1999, "plot": "new plot"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.MediaSummary](t, rec)
	assert.Equal(t, 1999, updated.Year)
	assert.Equal(t, "new plot", updated.Plot)

	rec = env.doJSON(t, env.viewer, http.MethodPatch, path, map[string]any{"year": 2001})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.doJSON(t, env.admin, http.MethodPatch, path, map[string]any{
		"video_order": []map[string]any{{"video_id": models.NewULID().String(), "index": 1}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	body, ct := mediaForm(t, nil, "cover.jpeg", "new-image")
	rec = env.do(t, env.admin, http.MethodPut, path+"/thumbnail", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	withThumb := decode[models.MediaSummary](t, rec)
	assert.Equal(t, "Alpha_1999.jpg", withThumb.Thumbnail)

	exists, err := env.thumbs.Exists("Alpha_2021.jpg")
	require.NoError(t, err)
	assert.False(t, exists, "replaced thumbnail removed")

	rec = env.do(t, nil, http.MethodGet, "/thumbnails/Alpha_1999.jpg", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new-image", rec.Body.String())
}

func TestMediaHandler_Delete(t *testing.T) {
	env := newAPIEnv(t)
	created := env.createMedia(t, "Alpha", 1)
	path := "/api/v1/media/" + created.ID.String()

	rec := env.do(t, env.critic, http.MethodDelete, path, nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, env.admin, http.MethodDelete, path, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, nil, http.MethodGet, path, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, nil, http.MethodGet, "/thumbnails/"+created.Thumbnail, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedbackHandler_Ratings(t *testing.T) {
	env := newAPIEnv(t)
	alpha := env.createMedia(t, "Alpha", 1)
	beta := env.createMedia(t, "Beta", 1)

	rec := env.doJSON(t, env.viewer, http.MethodPost, "/api/v1/media/"+beta.ID.String()+"/ratings", map[string]any{"score": 9})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.doJSON(t, env.viewer, http.MethodPost, "/api/v1/media/"+alpha.ID.String()+"/ratings", map[string]any{"score": 3})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.doJSON(t, env.viewer, http.MethodPost, "/api/v1/media/"+alpha.ID.String()+"/ratings", map[string]any{"score": 11})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.doJSON(t, nil, http.MethodPost, "/api/v1/media/"+alpha.ID.String()+"/ratings", map[string]any{"score": 5})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, nil, http.MethodGet, "/api/v1/rankings/best-rated", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[models.Page[models.MediaSummary]](t, rec)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Beta", page.Items[0].Name)
	assert.InDelta(t, 9.0, page.Items[0].RatingAverage, 0.001)
}

func TestFeedbackHandler_Reviews(t *testing.T) {
	env := newAPIEnv(t)
	media := env.createMedia(t, "Alpha", 1)
	reviewsPath := "/api/v1/media/" + media.ID.String() + "/reviews"

	rec := env.doJSON(t, env.viewer, http.MethodPost, reviewsPath, map[string]any{"title": "meh"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.doJSON(t, env.critic, http.MethodPost, reviewsPath, map[string]any{"title": "Great", "comment": "Loved it"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	review := decode[models.Review](t, rec)
	assert.Equal(t, env.critic.ID, review.UserID)

	reviewPath := "/api/v1/reviews/" + review.ID.String()
	rec = env.doJSON(t, env.admin, http.MethodPatch, reviewPath, map[string]any{"title": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "only the author edits")

	rec = env.doJSON(t, env.critic, http.MethodPatch, reviewPath, map[string]any{"comment": "Still great"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decode[models.Review](t, rec)
	assert.Equal(t, "Great", edited.Title)
	assert.Equal(t, "Still great", edited.Comment)

	rec = env.do(t, nil, http.MethodGet, reviewsPath, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[models.Page[models.Review]](t, rec)
	require.Len(t, page.Items, 1)

	rec = env.do(t, env.admin, http.MethodDelete, reviewPath, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code, "administrators moderate")

	rec = env.do(t, env.admin, http.MethodDelete, reviewPath, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWatchHandler(t *testing.T) {
	env := newAPIEnv(t)
	alpha := env.createMedia(t, "Alpha", 2)
	env.createMedia(t, "Beta", 1)
	env.createMedia(t, "Gamma", 1)

	rec := env.doJSON(t, env.viewer, http.MethodPost, handlers.WatchPath, map[string]any{
		"video_id":  alpha.Videos[0].ID.String(),
		"timestamp": 42,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	event := decode[models.WatchEvent](t, rec)
	assert.Equal(t, int64(42), event.Timestamp)
	assert.Equal(t, alpha.ID, event.MediaID)

	rec = env.doJSON(t, nil, http.MethodPost, handlers.WatchPath, map[string]any{
		"video_id":  alpha.Videos[0].ID.String(),
		"timestamp": 1,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.doJSON(t, env.viewer, http.MethodPost, handlers.WatchPath, map[string]any{
		"video_id":  models.NewULID().String(),
		"timestamp": 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	userPath := "/api/v1/users/" + env.viewer.ID.String()

	rec = env.do(t, nil, http.MethodGet, userPath+"/unwatched-count", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	count := decode[struct {
		Count int64 `json:"count"`
	}](t, rec)
	assert.Equal(t, int64(2), count.Count)

	rec = env.do(t, nil, http.MethodGet, userPath+"/continue-watching", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	cont := decode[struct {
		Items []models.MediaActivity `json:"items"`
	}](t, rec)
	require.Len(t, cont.Items, 1)
	assert.Equal(t, alpha.ID, cont.Items[0].MediaID)

	rec = env.do(t, nil, http.MethodGet, userPath+"/last-watched", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[models.Page[models.WatchEntry]](t, rec)
	require.Len(t, history.Items, 1)
	assert.Equal(t, alpha.Videos[0].ID, history.Items[0].VideoID)
}

func TestAdminHandler(t *testing.T) {
	env := newAPIEnv(t)
	media := env.createMedia(t, "Alpha", 1)

	rec := env.do(t, nil, http.MethodGet, "/api/v1/media/"+media.ID.String(), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, nil, http.MethodGet, "/api/v1/cache/stats", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[struct {
		Regions []cache.Stats `json:"regions"`
	}](t, rec)
	var byID cache.Stats
	for _, s := range stats.Regions {
		if s.Region == cache.RegionMediaByID {
			byID = s
		}
	}
	assert.Equal(t, 1, byID.Entries)

	rec = env.do(t, env.viewer, http.MethodPost, "/api/v1/cache/refresh-watch-views", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(t, env.admin, http.MethodPost, "/api/v1/cache/refresh-watch-views", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, nil, http.MethodGet, "/api/v1/jobs", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := decode[struct {
		Jobs []map[string]any `json:"jobs"`
	}](t, rec)
	assert.NotNil(t, jobs.Jobs)
	assert.Empty(t, jobs.Jobs)
}

func TestCatalogHandler_Snapshot(t *testing.T) {
	env := newAPIEnv(t)
	for _, name := range []string{"Alpha", "Beta", "Gamma"} {
		env.createMedia(t, name, 1)
	}

	rec := env.do(t, nil, http.MethodGet, "/api/v1/catalog", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var snap struct {
		Items      []models.MediaSummary `json:"items"`
		Pages      int                   `json:"pages"`
		TotalItems int64                 `json:"total_items"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Len(t, snap.Items, 3)
	assert.Equal(t, 2, snap.Pages)
	assert.Equal(t, int64(3), snap.TotalItems)
}

func TestHealthHandler(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, nil, http.MethodGet, "/livez", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	live := decode[struct {
		Status string `json:"status"`
	}](t, rec)
	assert.Equal(t, "ok", live.Status)

	rec = env.do(t, nil, http.MethodGet, "/readyz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[handlers.ReadyzResponse](t, rec)
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, "ok", ready.Components["database"])

	rec = env.do(t, nil, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[handlers.HealthResponse](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "1.0.0", health.Version)
	assert.NotEmpty(t, health.HeapAlloc)
}

func TestHealthHandler_NotReadyWithoutDB(t *testing.T) {
	h := handlers.NewHealthHandler("1.0.0")
	out, err := h.GetReadyz(context.Background(), &handlers.ReadyzInput{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, out.Status)
	assert.Equal(t, "not_configured", out.Body.Components["database"])
}

func TestThumbnailHandler_RejectsTraversal(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, nil, http.MethodGet, "/thumbnails/..", nil, "")
	assert.NotEqual(t, http.StatusOK, rec.Code)

	rec = env.do(t, nil, http.MethodGet, "/thumbnails/missing.jpg", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
