package rem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Healer-AI/p8fs-sub000/pkg/apperror"
)

func newTestParser() *Parser {
	return NewParser("", "tenant-a", testLogger())
}

func TestParser_Lookup(t *testing.T) {
	tests := []struct {
		query string
		keys  Keys
		table string
	}{
		{"LOOKUP sarah chen", Keys{"sarah chen"}, ""},
		{"lookup 'sarah chen'", Keys{"sarah chen"}, ""},
		{`GET "my-project"`, Keys{"my-project"}, ""},
		{"LOOKUP moments:my-project", Keys{"my-project"}, "moments"},
		{"LOOKUP a, b ,c", Keys{"a", "b", "c"}, ""},
		{"LOOKUP meeting at 10:30", Keys{"meeting at 10:30"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			plan, err := newTestParser().Parse(tt.query)
			require.NoError(t, err)
			assert.Equal(t, QueryLookup, plan.Type())
			lp := plan.Parameters().(LookupParameters)
			assert.Equal(t, tt.keys, lp.Keys)
			assert.Equal(t, tt.table, lp.TableName)
			assert.Equal(t, "tenant-a", lp.TenantID)
		})
	}
}

func TestParser_SearchAndFuzzy(t *testing.T) {
	tests := []struct {
		query string
		qt    QueryType
		text  string
		table string
	}{
		{`SEARCH "database performance"`, QuerySearch, "database performance", "resources"},
		{`SEARCH "graph \"edges\"" IN moments`, QuerySearch, `graph "edges"`, "moments"},
		{`SEARCH moments: standup notes`, QuerySearch, "standup notes", "moments"},
		{`SEARCH plain words`, QuerySearch, "plain words", "resources"},
		{`FUZZY "sara" IN users`, QueryFuzzy, "sara", "users"},
		{`what did sarah say about databases?`, QuerySearch, "what did sarah say about databases?", "resources"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			plan, err := newTestParser().Parse(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.qt, plan.Type())
			assert.Equal(t, tt.table, plan.TableName())
			switch p := plan.Parameters().(type) {
			case SearchParameters:
				assert.Equal(t, tt.text, p.QueryText)
			case FuzzyParameters:
				assert.Equal(t, tt.text, p.QueryText)
			default:
				t.Fatalf("unexpected parameters %T", p)
			}
		})
	}
}

func TestParser_Select(t *testing.T) {
	plan, err := newTestParser().Parse("SELECT id, name FROM moments WHERE category = 'standup' ORDER BY created_at DESC LIMIT 5")
	require.NoError(t, err)
	require.Equal(t, QuerySQL, plan.Type())

	sp := plan.Parameters().(SQLParameters)
	assert.Equal(t, "moments", sp.TableName)
	assert.Equal(t, []string{"id", "name"}, sp.SelectFields)
	assert.Equal(t, "category = 'standup'", sp.WhereClause)
	assert.Equal(t, []string{"created_at DESC"}, sp.OrderBy)
	assert.Equal(t, 5, sp.Limit)

	_, err = newTestParser().Parse("SELECT * FROM resources WHERE 1=1; DROP TABLE resources")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, "validation_error"))
}

func TestParser_Traverse(t *testing.T) {
	t.Run("edge types and depth", func(t *testing.T) {
		plan, err := newTestParser().Parse(`TRAVERSE reports-to, manages WITH LOOKUP sarah chen DEPTH 2`)
		require.NoError(t, err)
		tp := plan.Parameters().(TraverseParameters)
		assert.Equal(t, QueryLookup, tp.InitialQueryType)
		assert.Equal(t, Keys{"sarah chen"}, tp.InitialQuery)
		assert.Equal(t, []string{"reports-to", "manages"}, tp.EdgeTypes)
		assert.Equal(t, 2, tp.MaxDepth)
		assert.False(t, tp.PlanMode)
	})

	t.Run("plan mode with search seed", func(t *testing.T) {
		plan, err := newTestParser().Parse(`TRAVERSE PLAN WITH SEARCH "database team" IN moments`)
		require.NoError(t, err)
		tp := plan.Parameters().(TraverseParameters)
		assert.Equal(t, QuerySearch, tp.InitialQueryType)
		assert.Equal(t, Keys{"database team"}, tp.InitialQuery)
		assert.True(t, tp.IsPlanMode())
		assert.Equal(t, "moments", tp.TableName)
		assert.Equal(t, DefaultMaxDepth, tp.MaxDepth)
	})

	t.Run("quoted lookup without edge types", func(t *testing.T) {
		plan, err := newTestParser().Parse(`TRAVERSE WITH LOOKUP "sarah chen" IN resources DEPTH 0`)
		require.NoError(t, err)
		tp := plan.Parameters().(TraverseParameters)
		assert.Equal(t, Keys{"sarah chen"}, tp.InitialQuery)
		assert.Empty(t, tp.EdgeTypes)
		assert.Equal(t, 0, tp.MaxDepth)
		assert.True(t, tp.IsPlanMode())
	})

	errs := []string{
		`TRAVERSE WITH SEARCH database team`,
		`TRAVERSE WITH FUZZY "x"`,
		`TRAVERSE reports-to`,
	}
	for _, q := range errs {
		t.Run(q, func(t *testing.T) {
			_, err := newTestParser().Parse(q)
			require.Error(t, err)
			assert.True(t, apperror.Is(err, "validation_error"))
		})
	}
}

func TestParser_Empty(t *testing.T) {
	_, err := newTestParser().Parse("   ")
	assert.True(t, apperror.Is(err, "validation_error"))
}

func TestStripQuotes(t *testing.T) {
	tests := map[string]string{
		`"a"`:          "a",
		`'a b'`:        "a b",
		"`code`":       "code",
		`"""triple"""`: "triple",
		"```fence```":  "fence",
		`"unbalanced`:  `"unbalanced`,
		`""`:           `""`,
		`plain`:        "plain",
	}
	for in, want := range tests {
		assert.Equal(t, want, stripQuotes(in), in)
	}
}
