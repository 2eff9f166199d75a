package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Healer-AI/p8fs-sub000/internal/config"
	"github.com/Healer-AI/p8fs-sub000/internal/version"
)

const pingTimeout = 5 * time.Second

// Pinger is the storage connection checked by the probes.
type Pinger interface {
	Ping(ctx context.Context) error
	Dialect() string
}

// Handler handles health check requests
type Handler struct {
	db         Pinger
	embeddings func() bool
	cfg        *config.Config
	startAt    time.Time
}

// NewHandler creates a new health handler. embeddingsEnabled may be nil.
func NewHandler(db Pinger, embeddingsEnabled func() bool, cfg *config.Config) *Handler {
	return &Handler{
		db:         db,
		embeddings: embeddingsEnabled,
		cfg:        cfg,
		startAt:    time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Backend   string           `json:"backend"`
	Checks    map[string]Check `json:"checks"`
}

// Check represents an individual health check result
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health returns the overall service health. Only the database decides the
// status code; disabled embeddings just degrade SEARCH.
// @Summary      Get service health
// @Tags         health
// @Produce      json
// @Success      200 {object} HealthResponse "Service is healthy"
// @Success      503 {object} HealthResponse "Service is unhealthy"
// @Router       /health [get]
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
	defer cancel()

	status := "healthy"
	db := Check{Status: "healthy"}
	if err := h.db.Ping(ctx); err != nil {
		db = Check{Status: "unhealthy", Message: err.Error()}
		status = "unhealthy"
	}

	emb := Check{Status: "disabled", Message: "SEARCH is unavailable"}
	if h.embeddings != nil && h.embeddings() {
		emb = Check{Status: "healthy"}
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startAt).String(),
		Version:   version.Version,
		Backend:   h.cfg.REM.Backend,
		Checks: map[string]Check{
			"database":   db,
			"embeddings": emb,
		},
	})
}

// Healthz returns a simple health check (for k8s liveness probe)
// @Router       /healthz [get]
func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Ready returns readiness status (for k8s readiness probe)
// @Router       /ready [get]
func (h *Handler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":  "not_ready",
			"message": "Database connection failed",
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ready"})
}

// Debug returns runtime information outside production
// @Router       /debug [get]
func (h *Handler) Debug(c echo.Context) error {
	if h.cfg.Environment == "production" {
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return c.JSON(http.StatusOK, map[string]any{
		"environment": h.cfg.Environment,
		"debug":       h.cfg.Debug,
		"go_version":  runtime.Version(),
		"goroutines":  runtime.NumGoroutine(),
		"memory": map[string]any{
			"alloc_mb":       mem.Alloc / 1024 / 1024,
			"total_alloc_mb": mem.TotalAlloc / 1024 / 1024,
			"sys_mb":         mem.Sys / 1024 / 1024,
			"num_gc":         mem.NumGC,
		},
		"rem": map[string]any{
			"backend":        h.cfg.REM.Backend,
			"dialect":        h.db.Dialect(),
			"default_table":  h.cfg.REM.DefaultTable,
			"default_tenant": h.cfg.REM.DefaultTenant,
			"kv_proxy":       h.cfg.KV.UseProxy(),
		},
	})
}
