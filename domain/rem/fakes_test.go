package rem

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend is an in-memory graph keyed by entity name.
type fakeBackend struct {
	mu       sync.Mutex
	rows     map[string][]map[string]any
	seed     []map[string]any
	lookups  [][]string
	searches []SearchParameters
	sqls     []SQLParameters
	fuzzies  []FuzzyParameters
	err      error
}

func newFakeBackend(rows ...map[string]any) *fakeBackend {
	f := &fakeBackend{rows: map[string][]map[string]any{}}
	for _, r := range rows {
		f.add(r)
	}
	return f
}

func (f *fakeBackend) add(row map[string]any) {
	name, _ := row["name"].(string)
	f.rows[name] = append(f.rows[name], row)
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Lookup(ctx context.Context, p LookupParameters) ([]Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, slices.Clone([]string(p.Keys)))
	if f.err != nil {
		return nil, f.err
	}
	var out []Entity
	for _, k := range p.Keys {
		for _, row := range f.rows[k] {
			e := NewEntity(row)
			table, _ := row["table"].(string)
			if table == "" {
				table = "resources"
			}
			e.annotate("public." + table)
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeBackend) seedEntities() []Entity {
	out := make([]Entity, 0, len(f.seed))
	for _, row := range f.seed {
		e := NewEntity(row)
		e.annotate("public.resources")
		out = append(out, e)
	}
	return out
}

func (f *fakeBackend) Search(ctx context.Context, p SearchParameters) ([]Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, p)
	if f.err != nil {
		return nil, f.err
	}
	return f.seedEntities(), nil
}

func (f *fakeBackend) Fuzzy(ctx context.Context, p FuzzyParameters) ([]Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fuzzies = append(f.fuzzies, p)
	return f.seedEntities(), f.err
}

func (f *fakeBackend) SQL(ctx context.Context, p SQLParameters) ([]Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sqls = append(f.sqls, p)
	if f.err != nil {
		return nil, f.err
	}
	return f.seedEntities(), nil
}

func node(name string, edges ...any) map[string]any {
	return map[string]any{
		"id":          uuid.NewString(),
		"name":        name,
		"tenant_id":   "tenant-test",
		"graph_paths": edges,
	}
}

func edge(rel, dst, createdAt string) map[string]any {
	e := map[string]any{"rel_type": rel, "dst": dst}
	if createdAt != "" {
		e["created_at"] = createdAt
	}
	return e
}

// fakeQuerier records statements and answers with the first matching
// canned response.
type fakeQuerier struct {
	mu        sync.Mutex
	responses []cannedResponse
	calls     []queryCall
}

type cannedResponse struct {
	contains string
	rows     []map[string]any
	err      error
}

type queryCall struct {
	query string
	args  []any
}

func (q *fakeQuerier) on(contains string, rows []map[string]any, err error) *fakeQuerier {
	q.responses = append(q.responses, cannedResponse{contains: contains, rows: rows, err: err})
	return q
}

func (q *fakeQuerier) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, queryCall{query: query, args: args})
	for _, r := range q.responses {
		if strings.Contains(query, r.contains) {
			return r.rows, r.err
		}
	}
	return nil, nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (e fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.vec, e.err
}
