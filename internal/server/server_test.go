package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Healer-AI/p8fs-sub000/internal/config"
	"github.com/Healer-AI/p8fs-sub000/pkg/apperror"
)

func newTestEcho() *echo.Echo {
	return NewEcho(&config.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNewEcho_ErrorEnvelope(t *testing.T) {
	e := newTestEcho()
	e.GET("/fail", func(c echo.Context) error {
		return apperror.ErrMissingTenant
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_tenant")
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestNewEcho_RecoversPanics(t *testing.T) {
	e := newTestEcho()
	e.GET("/panic", func(c echo.Context) error {
		panic(errors.New("boom"))
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNewEcho_CORSAllowsTenantHeader(t *testing.T) {
	e := newTestEcho()
	e.POST("/api/rem/query", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/rem/query", nil)
	req.Header.Set(echo.HeaderOrigin, "http://localhost:3000")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	req.Header.Set(echo.HeaderAccessControlRequestHeaders, "X-Tenant-ID")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowHeaders), "X-Tenant-ID")
}

func TestNewEcho_TrailingSlash(t *testing.T) {
	e := newTestEcho()
	e.GET("/ready", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
