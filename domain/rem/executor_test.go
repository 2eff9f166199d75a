package rem

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Healer-AI/p8fs-sub000/pkg/apperror"
)

func newTestExecutor(b *fakeBackend, defaultTenant string) *Executor {
	return NewExecutor(b, newTestTraverser(b), defaultTenant, testLogger())
}

func mustPlan(t *testing.T, qt QueryType, params Parameters) *QueryPlan {
	t.Helper()
	plan, err := NewQueryPlan(qt, params, nil)
	require.NoError(t, err)
	return plan
}

func TestExecutor_Dispatch(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend(node("sarah chen", edge("reports-to", "michael torres", "")), node("michael torres"))
	b.seed = []map[string]any{node("seeded")}
	exec := newTestExecutor(b, "")

	tests := []struct {
		name  string
		plan  *QueryPlan
		count int
		first string
	}{
		{"lookup", mustPlan(t, QueryLookup, DefaultLookupParameters("sarah chen")), 1, "sarah chen"},
		{"search", mustPlan(t, QuerySearch, DefaultSearchParameters("x")), 1, "seeded"},
		{"fuzzy", mustPlan(t, QueryFuzzy, DefaultFuzzyParameters("x")), 1, "seeded"},
		{"sql", mustPlan(t, QuerySQL, DefaultSQLParameters()), 1, "seeded"},
		{"traverse", mustPlan(t, QueryTraverse, DefaultTraverseParameters(QueryLookup, "sarah chen")), 2, "sarah chen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := exec.Execute(ctx, tt.plan.WithTenant("tenant-a"))
			require.NoError(t, err)
			assert.Equal(t, tt.plan.Type(), res.QueryType)
			assert.Equal(t, "fake", res.Backend)
			assert.Equal(t, tt.count, res.Count)
			require.Len(t, res.Results, tt.count)
			assert.Equal(t, tt.first, res.Results[0].Key())
		})
	}

	assert.Equal(t, "tenant-a", b.searches[0].TenantID)
	assert.Equal(t, "tenant-a", b.sqls[0].TenantID)
}

func TestExecutor_TraverseResult(t *testing.T) {
	b := newFakeBackend(node("a", edge("x", "b", "")), node("b"))
	exec := newTestExecutor(b, "tenant-a")

	res, err := exec.Execute(context.Background(), mustPlan(t, QueryTraverse, DefaultTraverseParameters(QueryLookup, "a")))
	require.NoError(t, err)
	require.NotNil(t, res.Traverse)
	assert.Equal(t, res.Traverse.Nodes, res.Results)
	assert.Equal(t, []string{"a"}, res.Traverse.SourceNodes)
}

func TestExecutor_Tenant(t *testing.T) {
	ctx := context.Background()

	t.Run("missing tenant", func(t *testing.T) {
		exec := newTestExecutor(newFakeBackend(), "")
		_, err := exec.Execute(ctx, mustPlan(t, QueryLookup, DefaultLookupParameters("a")))
		require.Error(t, err)
		assert.True(t, apperror.Is(err, "missing_tenant"))
	})

	t.Run("default tenant applies", func(t *testing.T) {
		b := newFakeBackend()
		exec := newTestExecutor(b, "tenant-default")
		_, err := exec.Execute(ctx, mustPlan(t, QuerySQL, DefaultSQLParameters()))
		require.NoError(t, err)
		assert.Equal(t, "tenant-default", b.sqls[0].TenantID)
	})

	t.Run("plan tenant wins", func(t *testing.T) {
		b := newFakeBackend()
		exec := newTestExecutor(b, "tenant-default")
		_, err := exec.Execute(ctx, mustPlan(t, QuerySQL, DefaultSQLParameters()).WithTenant("tenant-a"))
		require.NoError(t, err)
		assert.Equal(t, "tenant-a", b.sqls[0].TenantID)
	})
}

func TestExecutor_EmptyResultsAreNotNil(t *testing.T) {
	exec := newTestExecutor(newFakeBackend(), "tenant-a")
	res, err := exec.Execute(context.Background(), mustPlan(t, QueryLookup, DefaultLookupParameters("nobody")))
	require.NoError(t, err)
	assert.NotNil(t, res.Results)
	assert.Equal(t, 0, res.Count)
}

func TestExecutor_Errors(t *testing.T) {
	b := newFakeBackend()
	b.err = apperror.NewBackendUnavailable("search", errors.New("connection reset"))
	exec := newTestExecutor(b, "tenant-a")

	before := testutil.ToFloat64(QueriesTotal.WithLabelValues("search", "fake", "error"))
	_, err := exec.Execute(context.Background(), mustPlan(t, QuerySearch, DefaultSearchParameters("x")))
	require.Error(t, err)
	assert.True(t, apperror.Is(err, "backend_unavailable"))
	assert.Equal(t, before+1, testutil.ToFloat64(QueriesTotal.WithLabelValues("search", "fake", "error")))

	_, err = exec.Execute(context.Background(), nil)
	assert.True(t, apperror.Is(err, "validation_error"))
}
