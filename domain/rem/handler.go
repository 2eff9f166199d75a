package rem

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Healer-AI/p8fs-sub000/pkg/apperror"
)

// HeaderTenantID carries the tenant when the body does not.
const HeaderTenantID = "X-Tenant-ID"

const maxQueryLength = 4000

// Handler handles HTTP requests for REM queries
type Handler struct {
	svc *Service
}

// NewHandler creates a new REM handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Query handles POST /api/rem/query
// @Summary Execute a REM query string
// @Tags rem
// @Accept json
// @Produce json
// @Param body body QueryRequest true "REM query"
// @Success 200 {object} Result
// @Failure 400 {object} apperror.Error
// @Failure 422 {object} apperror.Error
// @Failure 503 {object} apperror.Error
// @Router /api/rem/query [post]
func (h *Handler) Query(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return apperror.ErrBadRequest.WithMessage("query is required")
	}
	if len(req.Query) > maxQueryLength {
		return apperror.ErrBadRequest.WithMessage("query is too long")
	}

	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = c.Request().Header.Get(HeaderTenantID)
	}

	result, err := h.svc.ExecuteQuery(c.Request().Context(), tenantID, req.Query)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Plan handles POST /api/rem/plan with a structured query plan body
// @Summary Execute a structured query plan
// @Tags rem
// @Accept json
// @Produce json
// @Success 200 {object} Result
// @Router /api/rem/plan [post]
func (h *Handler) Plan(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	plan, err := DecodeQueryPlan(body)
	if err != nil {
		return err
	}

	result, err := h.svc.ExecutePlan(c.Request().Context(), c.Request().Header.Get(HeaderTenantID), plan)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Parse handles POST /api/rem/parse and returns the plan without running it.
func (h *Handler) Parse(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = c.Request().Header.Get(HeaderTenantID)
	}
	plan, err := h.svc.Parse(tenantID, req.Query)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ParseResponse{Query: req.Query, Plan: plan})
}

// Schema handles GET /api/rem/schema/:query_type
func (h *Handler) Schema(c echo.Context) error {
	qt, err := ParseQueryType(c.Param("query_type"))
	if err != nil {
		return err
	}
	schema, err := ParametersSchema(qt)
	if err != nil {
		return apperror.NewInternal("failed to build schema", err)
	}
	return c.JSON(http.StatusOK, schema)
}

// CacheStats handles GET /api/rem/cache/stats
func (h *Handler) CacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.CacheStats())
}

// ClearCache handles DELETE /api/rem/cache and DELETE /api/rem/cache/:table
func (h *Handler) ClearCache(c echo.Context) error {
	table := c.Param("table")
	if table != "" && !isIdentifier(table) {
		return apperror.NewValidation("invalid table name")
	}
	h.svc.ClearCache(table)
	cleared := table
	if cleared == "" {
		cleared = "all"
	}
	return c.JSON(http.StatusOK, CacheClearResponse{Cleared: cleared})
}

// RegisterMapping handles POST /api/rem/mappings
// @Summary Register an entity name for LOOKUP and TRAVERSE resolution
// @Tags rem
// @Accept json
// @Produce json
// @Param body body RegisterMappingRequest true "Mapping"
// @Success 201 {object} MappingResponse
// @Failure 400 {object} apperror.Error
// @Failure 422 {object} apperror.Error
// @Failure 503 {object} apperror.Error
// @Router /api/rem/mappings [post]
func (h *Handler) RegisterMapping(c echo.Context) error {
	var req RegisterMappingRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	mapping, err := h.svc.RegisterMapping(c.Request().Context(), c.Request().Header.Get(HeaderTenantID), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toMappingResponse(mapping))
}
