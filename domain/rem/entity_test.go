package rem

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntity(t *testing.T) {
	e := NewEntity(map[string]any{
		"id":               []byte("0b6c"),
		"name":             "sarah chen",
		"tenant_id":        "tenant-a",
		FieldEntityType:    "public.resources",
		FieldTableName:     "resources",
		FieldTraverseDepth: float64(2),
	})

	assert.Equal(t, "sarah chen", e.Key())
	assert.Equal(t, "0b6c", e.ID())
	assert.Equal(t, "tenant-a", e.TenantID())
	assert.Equal(t, "public.resources", e.EntityType())
	assert.Equal(t, "resources", e.TableName())
	depth, ok := e.TraverseDepth()
	assert.True(t, ok)
	assert.Equal(t, 2, depth)

	_, ok = e.Get(FieldEntityType)
	assert.False(t, ok, "annotations are not row columns")
	assert.NotContains(t, e.Fields(), FieldTableName)
}

func TestEntity_KeyFallsBackToID(t *testing.T) {
	assert.Equal(t, "42", NewEntity(map[string]any{"id": int64(42)}).Key())
	assert.Empty(t, NewEntity(map[string]any{"content": "x"}).Key())
}

func TestEntity_Annotate(t *testing.T) {
	var e Entity
	e.annotate("public.moments")
	assert.Equal(t, "public.moments", e.EntityType())
	assert.Equal(t, "moments", e.TableName())

	e.annotate("resources")
	assert.Equal(t, "resources", e.TableName())
}

func TestEntity_JSONRoundTrip(t *testing.T) {
	e := NewEntity(map[string]any{"name": "a", "content": "hello"})
	e.annotate("public.resources")
	e.setTraverseDepth(1)

	out, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "a",
		"content": "hello",
		"_entity_type": "public.resources",
		"_table_name": "resources",
		"_traverse_depth": 1
	}`, string(out))

	var back Entity
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "resources", back.TableName())
	d, ok := back.TraverseDepth()
	assert.True(t, ok)
	assert.Equal(t, 1, d)
}

func TestEntity_MapWithoutDepth(t *testing.T) {
	m := NewEntity(map[string]any{"name": "a"}).Map()
	assert.NotContains(t, m, FieldTraverseDepth)
	assert.NotContains(t, m, FieldEntityType)
}

func TestParseGraphPaths(t *testing.T) {
	created := "2024-03-01T09:30:00Z"

	tests := []struct {
		name    string
		in      any
		want    []string // rel_type->dst
		wantErr bool
	}{
		{"nil", nil, nil, false},
		{"empty string", "", nil, false},
		{"json null", "null", nil, false},
		{"json list of dicts", `[{"rel_type":"reports-to","dst":"michael torres"}]`, []string{"reports-to->michael torres"}, false},
		{"bytes", []byte(`["alice"]`), []string{"edge->alice"}, false},
		{"alternate keys", []any{
			map[string]any{"relationship_type": "manages", "target_key": "bob"},
			map[string]any{"type": "knows", "target": "carol"},
		}, []string{"manages->bob", "knows->carol"}, false},
		{"string list", []string{"x", "", "y"}, []string{"edge->x", "edge->y"}, false},
		{"dict list", []map[string]any{{"rel_type": "a", "dst": "b"}}, []string{"a->b"}, false},
		{"missing target dropped", []any{map[string]any{"rel_type": "a"}, 42}, []string{}, false},
		{"malformed json", "{not json", nil, true},
		{"json object", `{"rel_type":"a"}`, nil, true},
		{"unsupported type", 3.14, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edges, err := ParseGraphPaths(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedGraphPaths))
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, edges)
				return
			}
			got := make([]string, 0, len(edges))
			for _, e := range edges {
				got = append(got, e.RelType+"->"+e.Target)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("typed fields", func(t *testing.T) {
		edges, err := ParseGraphPaths([]any{map[string]any{
			"rel_type":   "reports-to",
			"dst":        "michael torres",
			"created_at": created,
			"weight":     0.5,
			"properties": map[string]any{"since": "2021"},
			"source":     "hr",
		}})
		require.NoError(t, err)
		require.Len(t, edges, 1)
		e := edges[0]
		require.NotNil(t, e.CreatedAt)
		assert.True(t, e.CreatedAt.Equal(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)))
		assert.Equal(t, 0.5, e.Weight)

		v, ok := e.Field("source")
		assert.True(t, ok)
		assert.Equal(t, "hr", v)
		v, ok = e.Field("since")
		assert.True(t, ok)
		assert.Equal(t, "2021", v)
		_, ok = e.Field("missing")
		assert.False(t, ok)
	})

	t.Run("string edges default weight", func(t *testing.T) {
		edges, err := ParseGraphPaths([]string{"x"})
		require.NoError(t, err)
		assert.Equal(t, 1.0, edges[0].Weight)
		_, ok := edges[0].Field("created_at")
		assert.False(t, ok)
	})
}

func TestCompareValues(t *testing.T) {
	assert.Negative(t, compareValues("2024-01-01", "2024-02-01T00:00:00Z"))
	assert.Positive(t, compareValues(2.5, "1"))
	assert.Zero(t, compareValues(int64(3), 3.0))
	assert.Negative(t, compareValues("apple", "banana"))
}
