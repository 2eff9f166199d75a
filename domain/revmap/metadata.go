package revmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Healer-AI/p8fs-sub000/pkg/logger"
)

// ErrTableNotFound is returned when the catalog has no such table.
var ErrTableNotFound = errors.New("table not found")

// Column describes one primary key column.
type Column struct {
	Name       string `json:"name"`
	DataType   string `json:"type"`
	ColumnType string `json:"column_type"`
}

// PrimaryKey is the primary key shape of a table.
type PrimaryKey struct {
	Columns     []Column `json:"columns"`
	IsComposite bool     `json:"is_composite"`
}

// Catalog answers schema questions. The TiDB implementation reads
// INFORMATION_SCHEMA.
type Catalog interface {
	// TableID returns the engine's numeric id; ok is false when the
	// server does not expose one.
	TableID(ctx context.Context, table string) (id uint64, ok bool, err error)
	PrimaryKey(ctx context.Context, table string) ([]Column, error)
	TableExists(ctx context.Context, table string) (bool, error)
}

// CacheStats reports how many entries of each kind are cached.
type CacheStats struct {
	TotalEntries    int `json:"total_entries"`
	TableIDs        int `json:"table_ids"`
	PKInfo          int `json:"pk_info"`
	ExistenceChecks int `json:"existence_checks"`
}

type tableIDEntry struct {
	id    uint64
	found bool
}

// MetadataCache caches table ids, primary key shapes and existence per
// table. One instance is shared by every query; population happens under
// the lock so concurrent misses for the same table hit the catalog once.
type MetadataCache struct {
	catalog Catalog
	log     *slog.Logger

	mu       sync.Mutex
	tableIDs map[string]tableIDEntry
	pks      map[string]*PrimaryKey
	exists   map[string]bool
}

// NewMetadataCache creates an empty cache over catalog.
func NewMetadataCache(catalog Catalog, log *slog.Logger) *MetadataCache {
	return &MetadataCache{
		catalog:  catalog,
		log:      log.With(logger.Scope("revmap.metadata")),
		tableIDs: make(map[string]tableIDEntry),
		pks:      make(map[string]*PrimaryKey),
		exists:   make(map[string]bool),
	}
}

// TableID resolves the numeric table id, falling back to PseudoTableID
// when the catalog has none but the table exists. Absent tables are
// cached as absent and reported with ErrTableNotFound.
func (c *MetadataCache) TableID(ctx context.Context, table string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.tableIDs[table]; ok {
		if !e.found {
			return 0, fmt.Errorf("%w: %s", ErrTableNotFound, table)
		}
		return e.id, nil
	}

	id, ok, err := c.catalog.TableID(ctx, table)
	if err != nil {
		c.log.Debug("catalog table id unavailable", slog.String("table", table), logger.Error(err))
	}
	if err == nil && ok && id != 0 {
		c.tableIDs[table] = tableIDEntry{id: id, found: true}
		return id, nil
	}

	exists, err := c.tableExistsLocked(ctx, table)
	if err != nil {
		// Not cached: a transient catalog failure must not pin the table as absent.
		return 0, fmt.Errorf("check table %s: %w", table, err)
	}
	if !exists {
		c.tableIDs[table] = tableIDEntry{}
		return 0, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}

	id = PseudoTableID(table)
	c.log.Debug("using pseudo table id", slog.String("table", table), slog.Uint64("table_id", id))
	c.tableIDs[table] = tableIDEntry{id: id, found: true}
	return id, nil
}

// PrimaryKey returns the cached primary key shape, or nil when the table
// has no primary key.
func (c *MetadataCache) PrimaryKey(ctx context.Context, table string) (*PrimaryKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pk, ok := c.pks[table]; ok {
		return pk, nil
	}

	cols, err := c.catalog.PrimaryKey(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("primary key for %s: %w", table, err)
	}

	var pk *PrimaryKey
	if len(cols) > 0 {
		pk = &PrimaryKey{Columns: cols, IsComposite: len(cols) > 1}
	}
	c.pks[table] = pk
	return pk, nil
}

// TableExists reports whether the table is present in the current schema.
func (c *MetadataCache) TableExists(ctx context.Context, table string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tableExistsLocked(ctx, table)
}

func (c *MetadataCache) tableExistsLocked(ctx context.Context, table string) (bool, error) {
	if v, ok := c.exists[table]; ok {
		return v, nil
	}
	exists, err := c.catalog.TableExists(ctx, table)
	if err != nil {
		return false, err
	}
	c.exists[table] = exists
	return exists, nil
}

// Invalidate drops every cached entry for table.
func (c *MetadataCache) Invalidate(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tableIDs, table)
	delete(c.pks, table)
	delete(c.exists, table)
	c.log.Debug("invalidated table metadata", slog.String("table", table))
}

// Clear drops the whole cache.
func (c *MetadataCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tableIDs = make(map[string]tableIDEntry)
	c.pks = make(map[string]*PrimaryKey)
	c.exists = make(map[string]bool)
	c.log.Debug("cleared table metadata cache")
}

// Stats returns entry counts for monitoring.
func (c *MetadataCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := CacheStats{
		TableIDs:        len(c.tableIDs),
		PKInfo:          len(c.pks),
		ExistenceChecks: len(c.exists),
	}
	s.TotalEntries = s.TableIDs + s.PKInfo + s.ExistenceChecks
	return s
}
