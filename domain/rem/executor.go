package rem

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Healer-AI/p8fs-sub000/pkg/apperror"
	"github.com/Healer-AI/p8fs-sub000/pkg/logger"
	"github.com/Healer-AI/p8fs-sub000/pkg/tracing"
)

// Result is the uniform result of executing a plan. Results holds the
// entities for LOOKUP, SEARCH, FUZZY and SQL; Traverse is set for TRAVERSE.
type Result struct {
	QueryType QueryType         `json:"query_type"`
	Backend   string            `json:"backend"`
	Count     int               `json:"count"`
	Results   []Entity          `json:"results"`
	Traverse  *TraverseResponse `json:"traverse,omitempty"`
}

// Executor dispatches query plans to the backend or the traverser.
type Executor struct {
	backend       Backend
	traverser     *Traverser
	defaultTenant string
	log           *slog.Logger
}

// NewExecutor creates an executor. defaultTenant is used for plans that
// carry no tenant.
func NewExecutor(backend Backend, traverser *Traverser, defaultTenant string, log *slog.Logger) *Executor {
	return &Executor{
		backend:       backend,
		traverser:     traverser,
		defaultTenant: defaultTenant,
		log:           log.With(logger.Scope("rem.executor")),
	}
}

// Backend returns the name of the backend plans run against.
func (e *Executor) Backend() string { return e.backend.Name() }

// Execute runs plan and returns its result.
func (e *Executor) Execute(ctx context.Context, plan *QueryPlan) (*Result, error) {
	if plan == nil {
		return nil, apperror.NewValidation("query plan is required")
	}
	tenantID := plan.TenantID()
	if tenantID == "" {
		tenantID = e.defaultTenant
	}
	if tenantID == "" {
		return nil, apperror.ErrMissingTenant
	}
	params := plan.Parameters().withTenant(tenantID)

	qt := plan.Type()
	backend := e.backend.Name()
	ctx, span := tracing.Start(ctx, "rem.execute",
		attribute.String("rem.query_type", string(qt)),
		attribute.String("rem.backend", backend),
		attribute.String("rem.tenant_id", tenantID),
	)
	defer span.End()

	start := time.Now()
	result, err := e.dispatch(ctx, params)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	QueriesTotal.WithLabelValues(string(qt), backend, status).Inc()
	QueryDuration.WithLabelValues(string(qt), backend).Observe(elapsed.Seconds())

	if err != nil {
		e.log.Error("query failed",
			slog.String("query_type", string(qt)),
			slog.String("tenant_id", tenantID),
			slog.Duration("elapsed", elapsed),
			logger.Error(err),
		)
		return nil, err
	}

	result.QueryType = qt
	result.Backend = backend
	e.log.Debug("query executed",
		slog.String("query_type", string(qt)),
		slog.Int("count", result.Count),
		slog.Duration("elapsed", elapsed),
	)
	return result, nil
}

func (e *Executor) dispatch(ctx context.Context, params Parameters) (*Result, error) {
	var (
		entities []Entity
		err      error
	)
	switch p := params.(type) {
	case LookupParameters:
		entities, err = e.backend.Lookup(ctx, p)
	case SearchParameters:
		entities, err = e.backend.Search(ctx, p)
	case FuzzyParameters:
		entities, err = e.backend.Fuzzy(ctx, p)
	case SQLParameters:
		if err := p.Validate(); err != nil {
			return nil, err
		}
		entities, err = e.backend.SQL(ctx, p)
	case TraverseParameters:
		resp, err := e.traverser.Traverse(ctx, p)
		if err != nil {
			return nil, err
		}
		TraverseNodes.Observe(float64(resp.Metadata.TotalNodesBeforeLimit))
		return &Result{Count: len(resp.Nodes), Results: resp.Nodes, Traverse: resp}, nil
	default:
		return nil, apperror.ErrUnsupportedQuery.WithMessage(fmt.Sprintf("unsupported parameters %T", params))
	}
	if err != nil {
		return nil, err
	}
	if entities == nil {
		entities = []Entity{}
	}
	return &Result{Count: len(entities), Results: entities}, nil
}
