package revmap

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Healer-AI/p8fs-sub000/pkg/kv"
	"github.com/Healer-AI/p8fs-sub000/pkg/logger"
)

// ScanLimit caps how many entity types one name can resolve to.
const ScanLimit = 100

const kindNameIndex = "name_index"

// Registration describes a stored entity whose name should become resolvable.
type Registration struct {
	Name       string
	EntityType string
	EntityID   string
	TableName  string
	TenantID   string
}

// EntityKey is the "{entity_type}/{name}" reference key.
func (r Registration) EntityKey() string {
	return r.EntityType + "/" + r.Name
}

// NameKey is the "{name}/{entity_type}" index key.
func (r Registration) NameKey() string {
	return r.Name + "/" + r.EntityType
}

// ReverseKey is the "reverse/{entity_key}/{entity_type}" key.
func (r Registration) ReverseKey() string {
	return "reverse/" + r.EntityKey() + "/" + r.EntityType
}

// NameMapping is what a name resolves to: where the row lives and, when
// known, the row's binary storage key.
type NameMapping struct {
	Name       string
	EntityType string
	EntityID   string
	EntityKey  string
	TableName  string
	TenantID   string
	TiDBKey    string // hex; empty when the table id could not be resolved
	ReverseKey string
}

// BinaryKey decodes TiDBKey. ok is false when no key was recorded.
func (m NameMapping) BinaryKey() (key []byte, ok bool) {
	if m.TiDBKey == "" {
		return nil, false
	}
	b, err := ParseHexKey(m.TiDBKey)
	if err != nil {
		return nil, false
	}
	return b, true
}

// Mapper maintains the three reverse mapping records per entity in the KV
// store and resolves names through them.
type Mapper struct {
	store kv.Store
	cache *MetadataCache
	log   *slog.Logger
	now   func() time.Time
}

// NewMapper creates a mapper over store, using cache for table ids.
func NewMapper(store kv.Store, cache *MetadataCache, log *slog.Logger) *Mapper {
	return &Mapper{
		store: store,
		cache: cache,
		log:   log.With(logger.Scope("revmap")),
		now:   time.Now,
	}
}

// Store writes the reference, name index and reverse records for reg.
// Only a failed reference write is returned; the other two are logged.
func (m *Mapper) Store(ctx context.Context, reg Registration) (*NameMapping, error) {
	if reg.Name == "" || reg.EntityType == "" || reg.TenantID == "" || reg.TableName == "" {
		return nil, errors.New("registration requires name, entity type, table and tenant")
	}

	var hexKey string
	tableID, err := m.cache.TableID(ctx, reg.TableName)
	if err != nil {
		m.log.Warn("no table id, storing mapping without binary key",
			slog.String("table", reg.TableName),
			logger.Error(err),
		)
	} else {
		hexKey = hex.EncodeToString(BinaryKey(tableID, reg.TenantID, reg.EntityType, reg.EntityID))
	}

	createdAt := m.now().UTC().Format(time.RFC3339Nano)

	reference := map[string]any{
		"tidb_key":    hexKey,
		"entity_type": reg.EntityType,
		"tenant_id":   reg.TenantID,
		"entity_id":   reg.EntityID,
		"table_name":  reg.TableName,
		"created_at":  createdAt,
	}
	if err := m.store.Put(ctx, reg.EntityKey(), reference, reg.TenantID); err != nil {
		return nil, fmt.Errorf("store entity reference %s: %w", reg.EntityKey(), err)
	}

	mapping := &NameMapping{
		Name:       reg.Name,
		EntityType: reg.EntityType,
		EntityID:   reg.EntityID,
		EntityKey:  reg.EntityKey(),
		TableName:  reg.TableName,
		TenantID:   reg.TenantID,
		TiDBKey:    hexKey,
		ReverseKey: reg.ReverseKey(),
	}

	if err := m.store.Put(ctx, reg.NameKey(), mapping.record(createdAt), reg.TenantID); err != nil {
		m.log.Warn("failed to store name index",
			slog.String("key", reg.NameKey()),
			logger.Error(err),
		)
	}

	reverse := map[string]any{
		"tidb_tikv_key": hexKey,
		"entity_id":     reg.EntityID,
		"entity_key":    reg.EntityKey(),
		"entity_type":   reg.EntityType,
		"tenant_id":     reg.TenantID,
		"created_at":    createdAt,
	}
	if err := m.store.Put(ctx, reg.ReverseKey(), reverse, reg.TenantID); err != nil {
		m.log.Warn("failed to store reverse mapping",
			slog.String("key", reg.ReverseKey()),
			logger.Error(err),
		)
	}

	return mapping, nil
}

// Resolve returns every entity type registered under name for the tenant.
func (m *Mapper) Resolve(ctx context.Context, tenantID, name string) ([]NameMapping, error) {
	entries, err := m.store.Scan(ctx, name+"/", ScanLimit, tenantID)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", name, err)
	}

	out := make([]NameMapping, 0, len(entries))
	for _, e := range entries {
		// The prefix can also match reference keys ("{type}/{name}") when a
		// name equals an entity type; only name index records count.
		if e.Value["kind"] != kindNameIndex || e.Value["name"] != name {
			continue
		}
		if strings.Contains(strings.TrimPrefix(e.Key, name+"/"), "/") {
			continue
		}
		nm := mappingFromRecord(e.Value)
		if nm.EntityType == "" || nm.TableName == "" || nm.EntityID == "" {
			m.log.Debug("skipping incomplete name index entry", slog.String("key", e.Key))
			continue
		}
		out = append(out, nm)
	}
	return out, nil
}

// Reference reads the "{entity_type}/{name}" record.
func (m *Mapper) Reference(ctx context.Context, tenantID, entityType, name string) (map[string]any, error) {
	return m.store.Get(ctx, entityType+"/"+name, tenantID)
}

// Reverse reads the reverse record for an entity key.
func (m *Mapper) Reverse(ctx context.Context, tenantID, entityKey, entityType string) (map[string]any, error) {
	return m.store.Get(ctx, "reverse/"+entityKey+"/"+entityType, tenantID)
}

// EntitiesOfType lists reference records of one entity type.
func (m *Mapper) EntitiesOfType(ctx context.Context, tenantID, entityType string, limit int) ([]kv.Entry, error) {
	return m.store.Scan(ctx, entityType+"/", limit, tenantID)
}

func (nm NameMapping) record(createdAt string) map[string]any {
	return map[string]any{
		"kind":        kindNameIndex,
		"entity_id":   nm.EntityID,
		"entity_key":  nm.EntityKey,
		"entity_type": nm.EntityType,
		"name":        nm.Name,
		"table_name":  nm.TableName,
		"tenant_id":   nm.TenantID,
		"tidb_key":    nm.TiDBKey,
		"reverse_key": nm.ReverseKey,
		"created_at":  createdAt,
	}
}

func mappingFromRecord(v map[string]any) NameMapping {
	return NameMapping{
		Name:       toString(v["name"]),
		EntityType: toString(v["entity_type"]),
		EntityID:   toString(v["entity_id"]),
		EntityKey:  toString(v["entity_key"]),
		TableName:  toString(v["table_name"]),
		TenantID:   toString(v["tenant_id"]),
		TiDBKey:    toString(v["tidb_key"]),
		ReverseKey: toString(v["reverse_key"]),
	}
}
