package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Healer-AI/p8fs-sub000/internal/config"
)

type fakeDB struct{ err error }

func (f fakeDB) Ping(ctx context.Context) error { return f.err }
func (f fakeDB) Dialect() string                { return "pg" }

func serve(t *testing.T, h *Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	RegisterRoutes(e, h)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func testConfig() *config.Config {
	return &config.Config{Environment: "local", REM: config.REMConfig{Backend: config.BackendPostgres}}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		dbErr      error
		embeddings func() bool
		wantCode   int
		wantStatus string
		wantEmb    string
	}{
		{"healthy", nil, func() bool { return true }, http.StatusOK, "healthy", "healthy"},
		{"embeddings disabled", nil, func() bool { return false }, http.StatusOK, "healthy", "disabled"},
		{"no embeddings service", nil, nil, http.StatusOK, "healthy", "disabled"},
		{"database down", errors.New("connection refused"), nil, http.StatusServiceUnavailable, "unhealthy", "disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, NewHandler(fakeDB{err: tt.dbErr}, tt.embeddings, testConfig()), "/health")
			require.Equal(t, tt.wantCode, rec.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantEmb, resp.Checks["embeddings"].Status)
			assert.Equal(t, config.BackendPostgres, resp.Backend)
		})
	}
}

func TestReady(t *testing.T) {
	rec := serve(t, NewHandler(fakeDB{}, nil, testConfig()), "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, NewHandler(fakeDB{err: errors.New("down")}, nil, testConfig()), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDebugHiddenInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.Environment = "production"
	rec := serve(t, NewHandler(fakeDB{}, nil, cfg), "/debug")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(t, NewHandler(fakeDB{}, nil, testConfig()), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
