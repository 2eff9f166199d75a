package rem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/Healer-AI/p8fs-sub000/pkg/apperror"
	"github.com/Healer-AI/p8fs-sub000/pkg/pgutils"
)

// Querier runs one raw statement with bun style "?" placeholders.
// database.Pool satisfies it.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) ([]map[string]any, error)
}

// Embedder turns query text into a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Backend executes the four primitive query shapes against one storage
// engine. TRAVERSE is built on top of Lookup, Search and SQL.
type Backend interface {
	Name() string
	Lookup(ctx context.Context, p LookupParameters) ([]Entity, error)
	Search(ctx context.Context, p SearchParameters) ([]Entity, error)
	Fuzzy(ctx context.Context, p FuzzyParameters) ([]Entity, error)
	SQL(ctx context.Context, p SQLParameters) ([]Entity, error)
}

var errEmbeddingsDisabled = errors.New("embedding service returned no vector")

// embed fetches the query vector. Any failure is fatal to SEARCH.
func embed(ctx context.Context, embedder Embedder, text string) (string, error) {
	if embedder == nil {
		return "", apperror.NewBackendUnavailable("embedding", errEmbeddingsDisabled)
	}
	vec, err := embedder.EmbedQuery(ctx, text)
	if err != nil {
		return "", apperror.NewBackendUnavailable("embedding", err)
	}
	if len(vec) == 0 {
		return "", apperror.NewBackendUnavailable("embedding", errEmbeddingsDisabled)
	}
	lit, err := pgutils.VectorLiteral(vec)
	if err != nil {
		return "", apperror.NewBackendUnavailable("embedding", err)
	}
	return lit, nil
}

// rowsToEntities wraps rows and keeps those at or above threshold when the
// rows carry a similarity column.
func rowsToEntities(rows []map[string]any, entityType, table string, threshold float64) []Entity {
	out := make([]Entity, 0, len(rows))
	for _, row := range rows {
		if threshold > 0 {
			if sim, ok := toFloat(row["similarity"]); ok && sim < threshold {
				continue
			}
		}
		e := NewEntity(row)
		e.annotateTable(entityType, table)
		out = append(out, e)
	}
	return out
}

// project keeps only the requested fields. "*" or no fields keeps all.
func project(row map[string]any, fields []string) map[string]any {
	if len(fields) == 0 || slices.Contains(fields, "*") {
		return row
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := row[f]; ok {
			out[f] = v
		}
	}
	return out
}

// decodeJSONObject reads a json/jsonb column that the driver may hand back
// as a map, a string or raw bytes.
func decodeJSONObject(v any) (map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return t, nil
	case string:
		return unmarshalObject([]byte(t))
	case []byte:
		return unmarshalObject(t)
	}
	return nil, fmt.Errorf("unexpected json value of type %T", v)
}

func unmarshalObject(data []byte) (map[string]any, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// entitiesByType flattens {entity_type: {data: [rows]}} into entities,
// dropping rows owned by another tenant and, when table is set, rows from
// other tables.
func entitiesByType(byType map[string]any, tenantID, table string) []Entity {
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	slices.Sort(types)

	var out []Entity
	for _, entityType := range types {
		group, ok := byType[entityType].(map[string]any)
		if !ok {
			continue
		}
		records, ok := group["data"].([]any)
		if !ok {
			continue
		}
		for _, rec := range records {
			row, ok := rec.(map[string]any)
			if !ok {
				continue
			}
			if owner := toString(row["tenant_id"]); owner != "" && owner != tenantID {
				continue
			}
			e := NewEntity(row)
			e.annotate(entityType)
			if table != "" && e.TableName() != table {
				continue
			}
			out = append(out, e)
		}
	}
	return out
}
