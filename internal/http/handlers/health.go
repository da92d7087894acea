package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dustin/go-humanize"
	"gorm.io/gorm"

	"github.com/jmylchreest/mediarr/internal/version"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *gorm.DB
	now       func() time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// WithDB sets the database connection for readiness checks.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the service version, uptime and memory use",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getLivez",
		Method:      "GET",
		Path:        "/livez",
		Summary:     "Liveness check",
		Description: "Returns ok while the process is serving requests",
		Tags:        []string{"System"},
	}, h.GetLivez)

	huma.Register(api, huma.Operation{
		OperationID: "getReadyz",
		Method:      "GET",
		Path:        "/readyz",
		Summary:     "Readiness check",
		Description: "Reports whether the database is reachable",
		Tags:        []string{"System"},
	}, h.GetReadyz)
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthResponse describes the running service.
type HealthResponse struct {
	Status        string       `json:"status"`
	Version       string       `json:"version"`
	Build         version.Info `json:"build"`
	Uptime        string       `json:"uptime"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartedAt     time.Time    `json:"started_at"`
	Goroutines    int          `json:"goroutines"`
	HeapAlloc     string       `json:"heap_alloc"`
	HeapAllocRaw  uint64       `json:"heap_alloc_bytes"`
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(_ context.Context, _ *HealthInput) (*HealthOutput, error) {
	uptime := h.now().Sub(h.startTime)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return &HealthOutput{
		Body: HealthResponse{
			Status:        "healthy",
			Version:       h.version,
			Build:         version.GetInfo(),
			Uptime:        uptime.Truncate(time.Second).String(),
			UptimeSeconds: int64(uptime.Seconds()),
			StartedAt:     h.startTime,
			Goroutines:    runtime.NumGoroutine(),
			HeapAlloc:     humanize.IBytes(mem.HeapAlloc),
			HeapAllocRaw:  mem.HeapAlloc,
		},
	}, nil
}

// LivezInput is the input for the liveness check.
type LivezInput struct{}

// LivezOutput is the output for the liveness check.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// GetLivez reports that the process is alive.
func (h *HealthHandler) GetLivez(_ context.Context, _ *LivezInput) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// ReadyzInput is the input for the readiness check.
type ReadyzInput struct{}

// ReadyzResponse reports readiness per component.
type ReadyzResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// ReadyzOutput is the output for the readiness check.
type ReadyzOutput struct {
	Status int
	Body   ReadyzResponse
}

// GetReadyz reports whether the database is reachable.
func (h *HealthHandler) GetReadyz(ctx context.Context, _ *ReadyzInput) (*ReadyzOutput, error) {
	out := &ReadyzOutput{
		Status: 200,
		Body: ReadyzResponse{
			Status:     "ready",
			Components: map[string]string{"database": "ok"},
		},
	}

	switch {
	case h.db == nil:
		out.Body.Components["database"] = "not_configured"
	default:
		if sqlDB, err := h.db.DB(); err != nil {
			out.Body.Components["database"] = "error: " + err.Error()
		} else if err := sqlDB.PingContext(ctx); err != nil {
			out.Body.Components["database"] = "error: " + err.Error()
		}
	}

	if out.Body.Components["database"] != "ok" {
		out.Status = 503
		out.Body.Status = "not_ready"
	}
	return out, nil
}
