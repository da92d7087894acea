package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/jmylchreest/mediarr/internal/observability"
	"github.com/jmylchreest/mediarr/internal/service"
)

type fakeUsers struct {
	users map[models.ULID]*models.User
	err   error
}

func (f *fakeUsers) GetByID(_ context.Context, id models.ULID) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[id], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	t.Run("generates an id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("reuses incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	})

	t.Run("replaces unsafe incoming id", func(t *testing.T) {
		for _, bad := range []string{"has space", "line\nbreak", strings.Repeat("x", maxRequestIDLen+1)} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(RequestIDHeader, bad)
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.NotEqual(t, bad, seen)
			assert.Len(t, seen, 36, "uuid")
		}
	})
}

func TestPrincipal(t *testing.T) {
	admin := &models.User{Username: "root", Roles: models.Roles{models.RoleAdmin}}
	admin.ID = models.NewULID()
	users := &fakeUsers{users: map[models.ULID]*models.User{admin.ID: admin}}
	logger := observability.NewDiscardLogger()

	var got service.Principal
	h := Principal(users, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PrincipalFromContext(r.Context())
	}))

	serve := func(header string) *httptest.ResponseRecorder {
		got = service.Principal{}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(UserIDHeader, header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := serve(admin.ID.String())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, admin.ID, got.UserID)
	assert.Equal(t, models.Roles{models.RoleAdmin}, got.Roles)

	rec = serve("")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, got.UserID.IsZero())

	unknown := models.NewULID()
	rec = serve(unknown.String())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, unknown, got.UserID)
	assert.Empty(t, got.Roles)

	rec = serve("not-a-ulid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), UserIDHeader)

	users.err = errors.New("db down")
	rec = serve(admin.ID.String())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimitPrefix(t *testing.T) {
	h := RateLimitPrefix("/api/v1/watch", 2, time.Minute)(okHandler())

	do := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("/api/v1/watch"))
	assert.Equal(t, http.StatusOK, do("/api/v1/watch"))
	assert.Equal(t, http.StatusTooManyRequests, do("/api/v1/watch"))
	assert.Equal(t, http.StatusOK, do("/api/v1/media"), "other paths are not limited")

	disabled := RateLimitPrefix("/api/v1/watch", 0, time.Minute)(okHandler())
	for range 5 {
		rec := httptest.NewRecorder()
		disabled.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/watch", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.Handler)
	r.Get("/api/v1/media/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/media/"+id, nil))
	}

	count := testutil.ToFloat64(m.requests.WithLabelValues("/api/v1/media/{id}", http.MethodGet, "404"))
	assert.Equal(t, float64(2), count)
}

func TestRecovery(t *testing.T) {
	h := Recovery(observability.NewDiscardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/problem+json"))
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	h := Recovery(observability.NewDiscardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestCORS(t *testing.T) {
	h := CORS("https://app.example")(okHandler())

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/media", nil)
		req.Header.Set("Origin", "https://app.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), UserIDHeader)
		assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/media", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("wildcard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/media", nil)
		req.Header.Set("Origin", "https://any.example")
		rec := httptest.NewRecorder()
		CORS("*")(okHandler()).ServeHTTP(rec, req)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-RateLimit-Remaining")
	})
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := chi.NewRouter()
	r.Use(NewLoggingMiddleware(logger, "/livez"))
	r.Get("/media/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/livez", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	lastLine := func() map[string]any {
		t.Helper()
		var entry map[string]any
		lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
		require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
		return entry
	}

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/media/42", nil))
	entry := lastLine()
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "/media/{id}", entry["route"])
	assert.EqualValues(t, 404, entry["status"])

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
	entry = lastLine()
	assert.Equal(t, "DEBUG", entry["level"])
	assert.EqualValues(t, 2, entry["bytes"])
}
