// Package http provides the HTTP server and API handlers for mediarr.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmylchreest/mediarr/internal/config"
	"github.com/jmylchreest/mediarr/internal/http/handlers"
	"github.com/jmylchreest/mediarr/internal/http/middleware"
)

// MetricsPath is where prometheus metrics are exposed.
const MetricsPath = "/metrics"

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Host is the address to bind to (default: "0.0.0.0").
	Host string
	// Port is the port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration
	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration
	// ShutdownTimeout is the maximum duration to wait for active connections to close.
	ShutdownTimeout time.Duration
	// CORSOrigins restricts cross-origin callers. Empty allows any origin.
	CORSOrigins []string
	// WatchRateLimit caps playback reports per client IP per WatchRateLimitWindow.
	WatchRateLimit       int
	WatchRateLimitWindow time.Duration
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:                 "0.0.0.0",
		Port:                 8080,
		ReadTimeout:          30 * time.Second,
		WriteTimeout:         30 * time.Second,
		IdleTimeout:          120 * time.Second,
		ShutdownTimeout:      30 * time.Second,
		WatchRateLimitWindow: time.Minute,
	}
}

// ServerConfigFrom maps the application configuration onto a ServerConfig.
func ServerConfigFrom(cfg config.ServerConfig) ServerConfig {
	out := DefaultServerConfig()
	out.Host = cfg.Host
	out.Port = cfg.Port
	if cfg.ReadTimeout > 0 {
		out.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		out.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.ShutdownTimeout > 0 {
		out.ShutdownTimeout = cfg.ShutdownTimeout
	}
	out.CORSOrigins = cfg.CORSOrigins
	out.WatchRateLimit = cfg.WatchRateLimit
	if cfg.WatchRateLimitWindow > 0 {
		out.WatchRateLimitWindow = cfg.WatchRateLimitWindow
	}
	return out
}

// Option configures optional server behaviour.
type Option func(*options)

type options struct {
	users    middleware.UserResolver
	registry *prometheus.Registry
}

// WithPrincipals resolves the X-User-ID header of each request against users.
func WithPrincipals(users middleware.UserResolver) Option {
	return func(o *options) { o.users = users }
}

// WithMetrics records HTTP metrics into reg and serves reg at /metrics.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// Server represents the HTTP server.
type Server struct {
	config     ServerConfig
	router     *chi.Mux
	api        huma.API
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with the given configuration.
// The version parameter is used in the OpenAPI document and should match the build version.
func NewServer(config ServerConfig, logger *slog.Logger, version string, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	router := chi.NewRouter()

	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.NewLoggingMiddleware(logger, "/livez", "/readyz", MetricsPath))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(config.CORSOrigins...))
	if o.registry != nil {
		router.Use(middleware.NewHTTPMetrics(o.registry).Handler)
	}
	router.Use(middleware.RateLimitPrefix(handlers.WatchPath, config.WatchRateLimit, config.WatchRateLimitWindow))
	router.Use(chimiddleware.Compress(5, "application/json", "application/problem+json"))
	if o.users != nil {
		router.Use(middleware.Principal(o.users, logger))
	}

	if o.registry != nil {
		router.Handle(MetricsPath, promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{Registry: o.registry}))
	}

	humaConfig := huma.DefaultConfig("mediarr API", version)
	humaConfig.Info.Description = "Video library catalog with cached listings, rankings and watch history"

	api := humachi.New(router, humaConfig)

	return &Server{
		config: config,
		router: router,
		api:    api,
		logger: logger,
	}
}

// API returns the Huma API instance for registering operations.
func (s *Server) API() huma.API {
	return s.api
}

// Router returns the Chi router for registering additional routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP server",
		slog.String("address", addr),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("shutting down HTTP server",
		slog.Duration("timeout", s.config.ShutdownTimeout),
	)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// ListenAndServe starts the server and handles graceful shutdown.
// It blocks until the server is shut down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}
