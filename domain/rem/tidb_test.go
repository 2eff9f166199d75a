package rem

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Healer-AI/p8fs-sub000/domain/revmap"
	"github.com/Healer-AI/p8fs-sub000/pkg/apperror"
	"github.com/Healer-AI/p8fs-sub000/pkg/kv"
)

type stubCatalog struct {
	ids    map[string]uint64
	tables map[string]bool
}

func (c stubCatalog) TableID(ctx context.Context, table string) (uint64, bool, error) {
	id, ok := c.ids[table]
	return id, ok, nil
}

func (c stubCatalog) PrimaryKey(ctx context.Context, table string) ([]revmap.Column, error) {
	return []revmap.Column{{Name: "id", DataType: "varchar"}}, nil
}

func (c stubCatalog) TableExists(ctx context.Context, table string) (bool, error) {
	_, hasID := c.ids[table]
	return hasID || c.tables[table], nil
}

type failingResolver struct{ err error }

func (r failingResolver) Resolve(ctx context.Context, tenantID, name string) ([]revmap.NameMapping, error) {
	return nil, r.err
}

// tidbFixture wires a mapper over an in-memory KV store. "resources" has a
// real table id, "moments" only exists and gets a pseudo id.
type tidbFixture struct {
	store  *kv.MemoryStore
	mapper *revmap.Mapper
	db     *fakeQuerier
}

func newTiDBFixture(t *testing.T) *tidbFixture {
	t.Helper()
	store := kv.NewMemoryStore()
	cache := revmap.NewMetadataCache(stubCatalog{
		ids:    map[string]uint64{"resources": 101},
		tables: map[string]bool{"moments": true},
	}, testLogger())
	return &tidbFixture{
		store:  store,
		mapper: revmap.NewMapper(store, cache, testLogger()),
		db:     &fakeQuerier{},
	}
}

func (f *tidbFixture) register(t *testing.T, reg revmap.Registration, row map[string]any) {
	t.Helper()
	m, err := f.mapper.Store(context.Background(), reg)
	require.NoError(t, err)
	if row != nil {
		key, ok := m.BinaryKey()
		require.True(t, ok)
		require.NoError(t, f.store.PutRow(key, row))
	}
}

func (f *tidbFixture) backend() *TiDBBackend {
	return NewTiDBBackend(f.db, f.mapper, f.store, nil, testLogger())
}

func TestTiDBLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("binary key hit", func(t *testing.T) {
		f := newTiDBFixture(t)
		f.register(t, revmap.Registration{
			Name: "sarah chen", EntityType: "resource", EntityID: "r-1",
			TableName: "resources", TenantID: "tenant-a",
		}, map[string]any{"id": "r-1", "name": "sarah chen", "tenant_id": "tenant-a"})

		p := DefaultLookupParameters("sarah chen")
		p.TenantID = "tenant-a"
		entities, err := f.backend().Lookup(ctx, p)
		require.NoError(t, err)
		require.Len(t, entities, 1)
		assert.Equal(t, "r-1", entities[0].ID())
		assert.Equal(t, "resource", entities[0].EntityType())
		assert.Equal(t, "resources", entities[0].TableName())
		assert.Empty(t, f.db.calls, "row came from the KV store")
	})

	t.Run("falls back to fetch by id", func(t *testing.T) {
		f := newTiDBFixture(t)
		f.register(t, revmap.Registration{
			Name: "kickoff", EntityType: "moment", EntityID: "m-1",
			TableName: "moments", TenantID: "tenant-a",
		}, nil)
		f.db.on("FROM moments", []map[string]any{{"id": "m-1", "name": "kickoff"}}, nil)

		p := DefaultLookupParameters("kickoff")
		p.TenantID = "tenant-a"
		entities, err := f.backend().Lookup(ctx, p)
		require.NoError(t, err)
		require.Len(t, entities, 1)
		assert.Equal(t, "moments", entities[0].TableName())

		require.Len(t, f.db.calls, 1)
		assert.Equal(t, "SELECT * FROM moments WHERE id = ? AND tenant_id = ?", f.db.calls[0].query)
		assert.Equal(t, []any{"m-1", "tenant-a"}, f.db.calls[0].args)
	})

	t.Run("same name in two tables", func(t *testing.T) {
		f := newTiDBFixture(t)
		f.register(t, revmap.Registration{
			Name: "my-project", EntityType: "resource", EntityID: "r-1",
			TableName: "resources", TenantID: "tenant-a",
		}, map[string]any{"id": "r-1", "name": "my-project"})
		f.register(t, revmap.Registration{
			Name: "my-project", EntityType: "moment", EntityID: "m-1",
			TableName: "moments", TenantID: "tenant-a",
		}, map[string]any{"id": "m-1", "name": "my-project"})

		p := DefaultLookupParameters("my-project")
		p.TenantID = "tenant-a"
		entities, err := f.backend().Lookup(ctx, p)
		require.NoError(t, err)
		tables := []string{}
		for _, e := range entities {
			tables = append(tables, e.TableName())
		}
		assert.ElementsMatch(t, []string{"resources", "moments"}, tables)

		p.TableName = "moments"
		entities, err = f.backend().Lookup(ctx, p)
		require.NoError(t, err)
		require.Len(t, entities, 1)
		assert.Equal(t, "m-1", entities[0].ID())
	})

	t.Run("other tenant sees nothing", func(t *testing.T) {
		f := newTiDBFixture(t)
		f.register(t, revmap.Registration{
			Name: "sarah chen", EntityType: "resource", EntityID: "r-1",
			TableName: "resources", TenantID: "tenant-a",
		}, map[string]any{"id": "r-1", "name": "sarah chen"})

		p := DefaultLookupParameters("sarah chen")
		p.TenantID = "tenant-b"
		entities, err := f.backend().Lookup(ctx, p)
		require.NoError(t, err)
		assert.Empty(t, entities)
	})

	t.Run("missing row is a partial miss", func(t *testing.T) {
		f := newTiDBFixture(t)
		f.register(t, revmap.Registration{
			Name: "ghost", EntityType: "moment", EntityID: "m-9",
			TableName: "moments", TenantID: "tenant-a",
		}, nil)
		f.db.on("FROM moments", nil, errors.New("Error 1054: Unknown column"))

		p := DefaultLookupParameters("ghost", "nobody")
		p.TenantID = "tenant-a"
		entities, err := f.backend().Lookup(ctx, p)
		require.NoError(t, err)
		assert.Empty(t, entities)
	})

	t.Run("connection loss during fallback is fatal", func(t *testing.T) {
		f := newTiDBFixture(t)
		f.register(t, revmap.Registration{
			Name: "kickoff", EntityType: "moment", EntityID: "m-1",
			TableName: "moments", TenantID: "tenant-a",
		}, nil)
		f.db.on("FROM moments", nil, errors.New("dial tcp 10.0.0.4:4000: connect: connection refused"))

		p := DefaultLookupParameters("kickoff")
		p.TenantID = "tenant-a"
		_, err := f.backend().Lookup(ctx, p)
		require.Error(t, err)
		assert.True(t, apperror.Is(err, "backend_unavailable"))
	})

	t.Run("name index scan failure is fatal", func(t *testing.T) {
		b := NewTiDBBackend(&fakeQuerier{}, failingResolver{err: errors.New("proxy unreachable")}, nil, nil, testLogger())
		_, err := b.Lookup(ctx, DefaultLookupParameters("a"))
		require.Error(t, err)
		assert.True(t, apperror.Is(err, "backend_unavailable"))
	})
}

func TestTiDBSearch(t *testing.T) {
	db := (&fakeQuerier{}).on("VEC_", []map[string]any{
		{"id": "1", "name": "close", "similarity": 0.8},
		{"id": "2", "name": "far", "similarity": 0.2},
	}, nil)
	b := NewTiDBBackend(db, nil, nil, fakeEmbedder{vec: []float32{1, 0}}, testLogger())

	p := DefaultSearchParameters("x")
	p.TenantID = "tenant-a"
	entities, err := b.Search(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"close"}, nodeKeys(entities))
	assert.Contains(t, db.calls[0].query, "VEC_COSINE_DISTANCE(e.embedding_vector, ?)")
	assert.Contains(t, db.calls[0].args, "[1,0]", "same vector literal as pgvector")

	p.Metric = MetricInnerProduct
	_, err = b.Search(context.Background(), p)
	require.NoError(t, err)
	assert.Contains(t, db.calls[1].query, "VEC_NEGATIVE_INNER_PRODUCT")
}

func TestTiDBFuzzy(t *testing.T) {
	t.Run("substring match ranked by tier then edit distance", func(t *testing.T) {
		db := (&fakeQuerier{}).on("LIKE", []map[string]any{
			{"id": "3", "name": "Sarah Connor"},
			{"id": "1", "name": "sara"},
			{"id": "2", "name": "sarah chen"},
			{"id": "4", "name": "not sara"},
		}, nil)
		b := NewTiDBBackend(db, nil, nil, nil, testLogger())

		p := DefaultFuzzyParameters("Sara")
		p.TenantID = "tenant-a"
		entities, err := b.Fuzzy(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, []string{"sara", "sarah chen", "Sarah Connor", "not sara"}, nodeKeys(entities))

		score, ok := entities[0].Get("similarity_score")
		require.True(t, ok)
		assert.Equal(t, 1.0, score)

		assert.Equal(t, []any{"tenant-a", "%sara%", "%sara%", "sara", "sara%", 10}, db.calls[0].args)
	})

	t.Run("word similarity uses full text", func(t *testing.T) {
		db := &fakeQuerier{}
		b := NewTiDBBackend(db, nil, nil, nil, testLogger())

		p := DefaultFuzzyParameters("graph database")
		p.UseWordSimilarity = true
		p.TenantID = "tenant-a"
		_, err := b.Fuzzy(context.Background(), p)
		require.NoError(t, err)
		assert.Contains(t, db.calls[0].query, "GREATEST(FTS_MATCH_WORD(?, name), FTS_MATCH_WORD(?, content))")
		assert.Len(t, db.calls[0].args, 6)
	})

	t.Run("single field has no GREATEST", func(t *testing.T) {
		p := DefaultFuzzyParameters("x")
		p.SearchFields = []string{"name"}
		query, _ := tidbFullTextQuery(p)
		assert.NotContains(t, query, "GREATEST")
	})
}

func TestTiDBSQL(t *testing.T) {
	db := &fakeQuerier{}
	b := NewTiDBBackend(db, nil, nil, nil, testLogger())

	p := DefaultSQLParameters()
	p.TenantID = "tenant-a"
	_, err := b.SQL(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM resources WHERE tenant_id = ?", db.calls[0].query)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, similarity("Sara", "sara"))
	assert.Equal(t, 1.0, similarity("", ""))
	assert.Equal(t, 0.0, similarity("abc", ""))
	assert.Greater(t, similarity("sarah chen", "sara"), similarity("sarah connor", "sara"))
}
