package rem

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Healer-AI/p8fs-sub000/domain/revmap"
	"github.com/Healer-AI/p8fs-sub000/internal/config"
	"github.com/Healer-AI/p8fs-sub000/pkg/apperror"
	"github.com/Healer-AI/p8fs-sub000/pkg/logger"
)

// Service binds the parser, the executor, the reverse mapper and the table
// metadata cache for the HTTP and CLI surfaces.
type Service struct {
	executor      *Executor
	cache         *revmap.MetadataCache
	mapper        *revmap.Mapper
	defaultTable  string
	defaultTenant string
	log           *slog.Logger
}

// NewService creates the query service.
func NewService(executor *Executor, cache *revmap.MetadataCache, mapper *revmap.Mapper, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		executor:      executor,
		cache:         cache,
		mapper:        mapper,
		defaultTable:  cfg.REM.DefaultTable,
		defaultTenant: cfg.REM.DefaultTenant,
		log:           log.With(logger.Scope("rem.service")),
	}
}

func (s *Service) tenant(tenantID string) string {
	if tenantID != "" {
		return tenantID
	}
	return s.defaultTenant
}

// Parse turns a REM query string into a plan for tenantID.
func (s *Service) Parse(tenantID, query string) (*QueryPlan, error) {
	return NewParser(s.defaultTable, s.tenant(tenantID), s.log).Parse(query)
}

// ExecuteQuery parses and executes a REM query string.
func (s *Service) ExecuteQuery(ctx context.Context, tenantID, query string) (*Result, error) {
	plan, err := s.Parse(tenantID, query)
	if err != nil {
		return nil, err
	}
	return s.executor.Execute(ctx, plan)
}

// ExecutePlan executes a structured plan. A non-empty tenantID overrides
// the plan's tenant only when the plan carries none.
func (s *Service) ExecutePlan(ctx context.Context, tenantID string, plan *QueryPlan) (*Result, error) {
	if plan.TenantID() == "" && tenantID != "" {
		plan = plan.WithTenant(tenantID)
	}
	return s.executor.Execute(ctx, plan)
}

// CacheStats reports the table metadata cache contents.
func (s *Service) CacheStats() revmap.CacheStats {
	return s.cache.Stats()
}

// ClearCache drops cached metadata for table, or everything when table is
// empty.
func (s *Service) ClearCache(table string) {
	if table == "" {
		s.cache.Clear()
	} else {
		s.cache.Invalidate(table)
	}
	s.log.Info("metadata cache cleared", slog.String("table", table))
}

// RegisterMapping makes an entity resolvable by name. The tenant falls back
// to tenantID and then the default tenant; the table falls back to the
// default table.
func (s *Service) RegisterMapping(ctx context.Context, tenantID string, req RegisterMappingRequest) (*revmap.NameMapping, error) {
	reg := revmap.Registration{
		Name:       strings.TrimSpace(req.Name),
		EntityType: strings.TrimSpace(req.EntityType),
		EntityID:   req.EntityID,
		TableName:  req.TableName,
		TenantID:   req.TenantID,
	}
	if reg.TenantID == "" {
		reg.TenantID = s.tenant(tenantID)
	}
	if reg.TenantID == "" {
		return nil, apperror.ErrMissingTenant
	}
	if reg.TableName == "" {
		reg.TableName = s.defaultTable
	}
	if reg.Name == "" || reg.EntityType == "" || reg.EntityID == "" {
		return nil, apperror.NewBadRequest("name, entity_type and entity_id are required")
	}
	if strings.Contains(reg.Name, "/") || strings.Contains(reg.EntityType, "/") {
		return nil, apperror.NewValidation("name and entity_type must not contain '/'")
	}
	if !isIdentifier(reg.TableName) {
		return nil, apperror.NewValidation(fmt.Sprintf("invalid table name %q", reg.TableName))
	}

	mapping, err := s.mapper.Store(ctx, reg)
	if err != nil {
		return nil, apperror.NewBackendUnavailable("store mapping", err)
	}
	s.log.Debug("registered name mapping",
		slog.String("key", mapping.EntityKey),
		slog.String("table", mapping.TableName),
		slog.Bool("has_binary_key", mapping.TiDBKey != ""),
	)
	return mapping, nil
}
