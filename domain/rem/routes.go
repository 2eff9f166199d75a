package rem

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the REM routes
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/rem")
	g.POST("/query", h.Query)
	g.POST("/plan", h.Plan)
	g.POST("/parse", h.Parse)
	g.GET("/schema/:query_type", h.Schema)
	g.POST("/mappings", h.RegisterMapping)

	cache := g.Group("/cache")
	cache.GET("/stats", h.CacheStats)
	cache.DELETE("", h.ClearCache)
	cache.DELETE("/:table", h.ClearCache)
}
