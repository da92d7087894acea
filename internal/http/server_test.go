package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/mediarr/internal/config"
	"github.com/jmylchreest/mediarr/internal/http/handlers"
	"github.com/jmylchreest/mediarr/internal/http/middleware"
	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/jmylchreest/mediarr/internal/observability"
)

type noUsers struct{}

func (noUsers) GetByID(context.Context, models.ULID) (*models.User, error) { return nil, nil }

func TestServerConfigFrom(t *testing.T) {
	cfg := ServerConfigFrom(config.ServerConfig{
		Host:           "127.0.0.1",
		Port:           9090,
		ReadTimeout:    5 * time.Second,
		CORSOrigins:    []string{"https://app.example"},
		WatchRateLimit: 10,
	})

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout, "unset values keep defaults")
	assert.Equal(t, time.Minute, cfg.WatchRateLimitWindow)
	assert.Equal(t, []string{"https://app.example"}, cfg.CORSOrigins)
}

func TestServer_Routes(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := NewServer(DefaultServerConfig(), observability.NewDiscardLogger(), "1.2.3",
		WithPrincipals(noUsers{}),
		WithMetrics(reg),
	)
	handlers.NewHealthHandler("1.2.3").Register(srv.API())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, MetricsPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mediarr_http_requests_total")

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mediarr API")
}

func TestServer_ShutdownWithoutStart(t *testing.T) {
	srv := NewServer(DefaultServerConfig(), nil, "")
	assert.NoError(t, srv.Shutdown(context.Background()))
}
