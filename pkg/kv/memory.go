package kv

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store and RowReader used for local
// development and tests. Values are deep-copied through JSON so callers
// cannot mutate stored state.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	rows map[string][]byte

	// FailPut, when set, is consulted before every Put.
	FailPut func(key string) error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
		rows: make(map[string][]byte),
	}
}

func (m *MemoryStore) Put(ctx context.Context, key string, value map[string]any, tenantID string) error {
	if m.FailPut != nil {
		if err := m.FailPut(key); err != nil {
			return err
		}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[TenantKey(tenantID, key)] = raw
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key, tenantID string) (map[string]any, error) {
	m.mu.RLock()
	raw, ok := m.data[TenantKey(tenantID, key)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(raw)
}

// Scan returns entries whose key starts with prefix, in key order.
func (m *MemoryStore) Scan(ctx context.Context, prefix string, limit int, tenantID string) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	full := TenantKey(tenantID, prefix)

	m.mu.RLock()
	keys := make([]string, 0)
	for k := range m.data {
		if strings.HasPrefix(k, full) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	raws := make([][]byte, len(keys))
	for i, k := range keys {
		raws[i] = m.data[k]
	}
	m.mu.RUnlock()

	entries := make([]Entry, 0, len(keys))
	for i, k := range keys {
		v, err := decode(raws[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: StripTenant(tenantID, k), Value: v})
	}
	return entries, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, TenantKey(tenantID, key))
	return nil
}

// PutRow stores a row under its raw storage key.
func (m *MemoryStore) PutRow(key []byte, row map[string]any) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[string(key)] = raw
	return nil
}

func (m *MemoryStore) GetRow(ctx context.Context, key []byte) (map[string]any, error) {
	m.mu.RLock()
	raw, ok := m.rows[string(key)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(raw)
}

// Len returns the number of stored keys across all tenants.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func decode(raw []byte) (map[string]any, error) {
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
