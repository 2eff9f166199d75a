package rem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/Healer-AI/p8fs-sub000/domain/revmap"
	"github.com/Healer-AI/p8fs-sub000/pkg/apperror"
	"github.com/Healer-AI/p8fs-sub000/pkg/kv"
	"github.com/Healer-AI/p8fs-sub000/pkg/logger"
	"github.com/Healer-AI/p8fs-sub000/pkg/pgutils"
)

// BackendTiDB names the KV reverse-mapping backend.
const BackendTiDB = "tidb"

var tidbDistanceFuncs = map[Metric]string{
	MetricCosine:       "VEC_COSINE_DISTANCE",
	MetricL2:           "VEC_L2_DISTANCE",
	MetricInnerProduct: "VEC_NEGATIVE_INNER_PRODUCT",
}

// NameResolver finds every entity registered under a name.
type NameResolver interface {
	Resolve(ctx context.Context, tenantID, name string) ([]revmap.NameMapping, error)
}

// TiDBBackend answers LOOKUP from the KV reverse mapping and everything
// else with MySQL-protocol SQL.
type TiDBBackend struct {
	db       Querier
	names    NameResolver
	rows     kv.RowReader
	embedder Embedder
	log      *slog.Logger
}

// NewTiDBBackend creates the KV reverse-mapping backend. rows may be nil,
// in which case every lookup fetches by id.
func NewTiDBBackend(db Querier, names NameResolver, rows kv.RowReader, embedder Embedder, log *slog.Logger) *TiDBBackend {
	return &TiDBBackend{
		db:       db,
		names:    names,
		rows:     rows,
		embedder: embedder,
		log:      log.With(logger.Scope("rem.tidb")),
	}
}

func (b *TiDBBackend) Name() string { return BackendTiDB }

// Lookup resolves each key through the name index. Keys that resolve to
// nothing, or whose rows cannot be fetched, are left out of the result.
func (b *TiDBBackend) Lookup(ctx context.Context, p LookupParameters) ([]Entity, error) {
	var out []Entity
	for _, key := range p.Keys {
		mappings, err := b.names.Resolve(ctx, p.TenantID, key)
		if err != nil {
			b.log.Error("reverse mapping scan failed", slog.String("key", key), logger.Error(err))
			return nil, apperror.NewBackendUnavailable("lookup", err)
		}
		if len(mappings) == 0 {
			b.log.Debug("no reverse mapping", slog.String("key", key))
			continue
		}

		for _, m := range mappings {
			if p.TableName != "" && m.TableName != p.TableName {
				continue
			}
			row, err := b.fetch(ctx, m, p)
			if err != nil {
				return nil, err
			}
			if row == nil {
				continue
			}
			e := NewEntity(project(row, p.Fields))
			e.annotateTable(m.EntityType, m.TableName)
			out = append(out, e)
		}
	}
	return out, nil
}

// fetch reads one mapped row, preferring the binary key. A nil row with a
// nil error is a miss.
func (b *TiDBBackend) fetch(ctx context.Context, m revmap.NameMapping, p LookupParameters) (map[string]any, error) {
	if key, ok := m.BinaryKey(); ok && b.rows != nil {
		row, err := b.rows.GetRow(ctx, key)
		switch {
		case err == nil && len(row) > 0:
			return row, nil
		case err != nil && !errors.Is(err, kv.ErrNotFound):
			b.log.Debug("binary key fetch failed, falling back to id",
				slog.String("entity_type", m.EntityType),
				logger.Error(err),
			)
		}
	}

	if !isIdentifier(m.TableName) {
		b.log.Warn("reverse mapping points at invalid table", slog.String("table", m.TableName))
		return nil, nil
	}
	fields := "*"
	if len(p.Fields) > 0 {
		fields = strings.Join(p.Fields, ", ")
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ? AND tenant_id = ?", fields, m.TableName)
	rows, err := b.db.Query(ctx, query, m.EntityID, p.TenantID)
	if err != nil {
		if pgutils.IsConnectionError(err) {
			return nil, apperror.NewBackendUnavailable("lookup", err)
		}
		b.log.Warn("fetch by id failed",
			slog.String("table", m.TableName),
			slog.String("entity_id", m.EntityID),
			logger.Error(err),
		)
		return nil, nil
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Search uses TiDB's native VEC_* distance functions.
func (b *TiDBBackend) Search(ctx context.Context, p SearchParameters) ([]Entity, error) {
	vec, err := embed(ctx, b.embedder, p.QueryText)
	if err != nil {
		return nil, err
	}
	query, args := tidbSearchQuery(p, vec)

	rows, err := b.db.Query(ctx, query, args...)
	if err != nil {
		b.log.Error("search failed", slog.String("table", p.TableName), logger.Error(err))
		return nil, apperror.NewBackendUnavailable("search", err)
	}
	return rowsToEntities(rows, p.TableName, p.TableName, p.Threshold), nil
}

func tidbSearchQuery(p SearchParameters, vector string) (string, []any) {
	fn := tidbDistanceFuncs[p.Metric]
	if fn == "" {
		fn = tidbDistanceFuncs[MetricCosine]
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
	%[1]s(e.embedding_vector, ?) AS distance,
	(1 - %[1]s(e.embedding_vector, ?)) AS similarity
FROM %[2]s m
INNER JOIN embeddings.%[2]s_embeddings e ON m.id = e.entity_id
WHERE %[3]s
ORDER BY %[1]s(e.embedding_vector, ?)
LIMIT ?`, fn, p.TableName, strings.Join(conds, " AND "))

	args := []any{vector, vector}
	args = append(args, condArgs...)
	args = append(args, vector, p.Limit)
	return query, args
}

// Fuzzy uses FTS_MATCH_WORD relevance when word similarity is requested,
// otherwise a case-insensitive substring match ordered exact, prefix, rest.
// Within each tier rows are ranked by edit distance to the query.
func (b *TiDBBackend) Fuzzy(ctx context.Context, p FuzzyParameters) ([]Entity, error) {
	var query string
	var args []any
	if p.UseWordSimilarity {
		query, args = tidbFullTextQuery(p)
	} else {
		query, args = tidbLikeQuery(p)
	}

	rows, err := b.db.Query(ctx, query, args...)
	if err != nil {
		b.log.Error("fuzzy search failed", slog.String("table", p.TableName), logger.Error(err))
		return nil, apperror.NewBackendUnavailable("fuzzy", err)
	}

	entities := rowsToEntities(rows, p.TableName, p.TableName, 0)
	if !p.UseWordSimilarity {
		rankBySimilarity(entities, p.QueryText, p.SearchFields)
	}
	return entities, nil
}

func tidbFullTextQuery(p FuzzyParameters) (string, []any) {
	scores := make([]string, len(p.SearchFields))
	matches := make([]string, len(p.SearchFields))
	var scoreArgs, matchArgs []any
	for i, f := range p.SearchFields {
		scores[i] = fmt.Sprintf("FTS_MATCH_WORD(?, %s)", f)
		matches[i] = fmt.Sprintf("FTS_MATCH_WORD(?, %s) > 0", f)
		scoreArgs = append(scoreArgs, p.QueryText)
		matchArgs = append(matchArgs, p.QueryText)
	}
	score := scores[0]
	if len(scores) > 1 {
		score = "GREATEST(" + strings.Join(scores, ", ") + ")"
	}

	query := fmt.Sprintf(`SELECT *, %s AS similarity_score
FROM %s
WHERE tenant_id = ? AND (%s)
ORDER BY similarity_score DESC
LIMIT ?`, score, p.TableName, strings.Join(matches, " OR "))

	args := append(scoreArgs, p.TenantID)
	args = append(args, matchArgs...)
	args = append(args, p.Limit)
	return query, args
}

func tidbLikeQuery(p FuzzyParameters) (string, []any) {
	text := strings.ToLower(p.QueryText)
	pattern := "%" + text + "%"

	likes := make([]string, len(p.SearchFields))
	args := []any{p.TenantID}
	for i, f := range p.SearchFields {
		likes[i] = fmt.Sprintf("LOWER(%s) LIKE ?", f)
		args = append(args, pattern)
	}
	primary := p.SearchFields[0]

	query := fmt.Sprintf(`SELECT * FROM %[1]s
WHERE tenant_id = ? AND (%[2]s)
ORDER BY CASE WHEN LOWER(%[3]s) = ? THEN 1 WHEN LOWER(%[3]s) LIKE ? THEN 2 ELSE 3 END, %[3]s
LIMIT ?`, p.TableName, strings.Join(likes, " OR "), primary)

	args = append(args, text, text+"%", p.Limit)
	return query, args
}

// matchTier is 1 for an exact match, 2 for a prefix match, 3 otherwise.
func matchTier(value, text string) int {
	v := strings.ToLower(value)
	switch {
	case v == text:
		return 1
	case strings.HasPrefix(v, text):
		return 2
	}
	return 3
}

// similarity is 1 for identical strings and 0 for nothing in common.
func similarity(a, b string) float64 {
	ra, rb := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	// DefaultOptions charges 2 per substitution, so the distance never
	// exceeds len(a)+len(b).
	d := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptions)
	return 1 - float64(d)/float64(total)
}

// rankBySimilarity keeps the tier order and breaks ties by edit distance,
// recording the best field score as similarity_score.
func rankBySimilarity(entities []Entity, text string, fields []string) {
	text = strings.ToLower(text)
	type ranked struct {
		entity Entity
		tier   int
		score  float64
	}
	rs := make([]ranked, len(entities))
	for i, e := range entities {
		best := 0.0
		for _, f := range fields {
			if s := similarity(toString(e.fields[f]), text); s > best {
				best = s
			}
		}
		e.fields["similarity_score"] = best
		rs[i] = ranked{entity: e, tier: matchTier(toString(e.fields[fields[0]]), text), score: best}
	}

	slices.SortStableFunc(rs, func(a, b ranked) int {
		if a.tier != b.tier {
			return a.tier - b.tier
		}
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})
	for i := range rs {
		entities[i] = rs[i].entity
	}
}

// SQL runs a tenant-scoped SELECT. The tenant is always bound.
func (b *TiDBBackend) SQL(ctx context.Context, p SQLParameters) ([]Entity, error) {
	query, args := selectQuery(p.TableName, p)
	rows, err := b.db.Query(ctx, query, args...)
	if err != nil {
		b.log.Error("sql failed", slog.String("table", p.TableName), logger.Error(err))
		return nil, apperror.NewBackendUnavailable("sql", err)
	}
	return rowsToEntities(rows, p.TableName, p.TableName, 0), nil
}
