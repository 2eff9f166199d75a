package rem

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/Healer-AI/p8fs-sub000/pkg/apperror"
	"github.com/Healer-AI/p8fs-sub000/pkg/logger"
)

// BackendPostgres names the graph-native backend.
const BackendPostgres = "postgresql"

var pgVectorOperators = map[Metric]string{
	MetricCosine:       "<=>",
	MetricL2:           "<->",
	MetricInnerProduct: "<#>",
}

// PostgresBackend answers LOOKUP and FUZZY through the p8 graph functions
// and SEARCH through pgvector.
type PostgresBackend struct {
	db       Querier
	embedder Embedder
	log      *slog.Logger
}

// NewPostgresBackend creates the graph-native backend.
func NewPostgresBackend(db Querier, embedder Embedder, log *slog.Logger) *PostgresBackend {
	return &PostgresBackend{
		db:       db,
		embedder: embedder,
		log:      log.With(logger.Scope("rem.postgres")),
	}
}

func (b *PostgresBackend) Name() string { return BackendPostgres }

// Lookup resolves every key in one call to p8.get_entities, which searches
// all registered entity tables.
func (b *PostgresBackend) Lookup(ctx context.Context, p LookupParameters) ([]Entity, error) {
	rows, err := b.db.Query(ctx, "SELECT p8.get_entities(?::text[]) AS get_entities", pq.Array([]string(p.Keys)))
	if err != nil {
		b.log.Error("lookup failed", slog.Any("keys", p.Keys), logger.Error(err))
		return nil, apperror.NewBackendUnavailable("lookup", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	byType, err := decodeJSONObject(rows[0]["get_entities"])
	if err != nil {
		return nil, apperror.NewBackendUnavailable("lookup", fmt.Errorf("decode get_entities: %w", err))
	}
	entities := entitiesByType(byType, p.TenantID, p.TableName)
	if len(p.Fields) > 0 {
		for i := range entities {
			projected := NewEntity(project(entities[i].fields, p.Fields))
			projected.annotateTable(entities[i].entityType, entities[i].tableName)
			entities[i] = projected
		}
	}

	b.log.Debug("lookup complete",
		slog.Int("keys", len(p.Keys)),
		slog.Int("found", len(entities)),
	)
	return entities, nil
}

// Search joins the entity table with its embedding table and orders by
// vector distance. Rows below the threshold are dropped.
func (b *PostgresBackend) Search(ctx context.Context, p SearchParameters) ([]Entity, error) {
	vec, err := embed(ctx, b.embedder, p.QueryText)
	if err != nil {
		return nil, err
	}
	query, args := pgSearchQuery(p, vec)

	rows, err := b.db.Query(ctx, query, args...)
	if err != nil {
		b.log.Error("search failed", slog.String("table", p.TableName), logger.Error(err))
		return nil, apperror.NewBackendUnavailable("search", err)
	}
	return rowsToEntities(rows, "public."+p.TableName, p.TableName, p.Threshold), nil
}

func pgSearchQuery(p SearchParameters, vector string) (string, []any) {
	op := pgVectorOperators[p.Metric]
	if op == "" {
		op = pgVectorOperators[MetricCosine]
	}

	var conds []string
	var condArgs []any
	if p.EmbeddingField != "" {
		conds = append(conds, "e.field_name = ?")
		condArgs = append(condArgs, p.EmbeddingField)
	}
	conds = append(conds, "m.tenant_id = ?", "e.tenant_id = ?")
	condArgs = append(condArgs, p.TenantID, p.TenantID)

	query := fmt.Sprintf(`SELECT m.*, e.field_name,
	(e.embedding_vector %[1]s ?::vector) AS distance,
	(1 - (e.embedding_vector %[1]s ?::vector)) AS similarity
FROM public.%[2]s m
INNER JOIN embeddings.%[2]s_embeddings e ON m.id = e.entity_id
WHERE %[3]s
ORDER BY e.embedding_vector %[1]s ?::vector
LIMIT ?`, op, p.TableName, strings.Join(conds, " AND "))

	args := []any{vector, vector}
	args = append(args, condArgs...)
	args = append(args, vector, p.Limit)
	return query, args
}

// Fuzzy runs p8.fuzzy_search over the graph vertex index used by LOOKUP,
// so both agree on which entities exist.
func (b *PostgresBackend) Fuzzy(ctx context.Context, p FuzzyParameters) ([]Entity, error) {
	rows, err := b.db.Query(ctx,
		"SELECT p8.fuzzy_search(?::text[], ?::real, ?::text, ?::int) AS fuzzy_search",
		pq.Array([]string{p.QueryText}), p.Threshold, p.TenantID, p.Limit,
	)
	if err != nil {
		b.log.Error("fuzzy search failed", slog.String("text", p.QueryText), logger.Error(err))
		return nil, apperror.NewBackendUnavailable("fuzzy", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	result, err := decodeJSONObject(rows[0]["fuzzy_search"])
	if err != nil {
		return nil, apperror.NewBackendUnavailable("fuzzy", fmt.Errorf("decode fuzzy_search: %w", err))
	}
	byType, _ := result["entities"].(map[string]any)
	return entitiesByType(byType, p.TenantID, ""), nil
}

// SQL runs a tenant-scoped SELECT on the public schema.
func (b *PostgresBackend) SQL(ctx context.Context, p SQLParameters) ([]Entity, error) {
	query, args := selectQuery("public."+p.TableName, p)
	rows, err := b.db.Query(ctx, query, args...)
	if err != nil {
		b.log.Error("sql failed", slog.String("table", p.TableName), logger.Error(err))
		return nil, apperror.NewBackendUnavailable("sql", err)
	}
	return rowsToEntities(rows, "public."+p.TableName, p.TableName, 0), nil
}

// selectQuery builds the SELECT for SQL parameters. The tenant is always a
// bound argument; the validated where clause is passed as bun.Safe so any
// "?" inside it is not taken for a placeholder.
func selectQuery(table string, p SQLParameters) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s WHERE tenant_id = ?", p.fields(), table)
	args := []any{p.TenantID}
	if p.WhereClause != "" {
		sb.WriteString(" AND (?)")
		args = append(args, bun.Safe(p.WhereClause))
	}
	if len(p.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(p.OrderBy, ", "))
	}
	if p.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, p.Limit)
	}
	return sb.String(), args
}
