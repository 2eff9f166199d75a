// Package kv is the tenant-scoped key-value store that backs the reverse
// name mapping. Keys are stored as "{tenant}/{key}"; callers never see the
// tenant prefix.
package kv

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// Entry is one scanned key/value pair with the tenant prefix removed.
type Entry struct {
	Key   string
	Value map[string]any
}

// Store is the tenant-scoped JSON key-value interface.
type Store interface {
	Put(ctx context.Context, key string, value map[string]any, tenantID string) error
	Get(ctx context.Context, key, tenantID string) (map[string]any, error)
	Scan(ctx context.Context, prefix string, limit int, tenantID string) ([]Entry, error)
	Delete(ctx context.Context, key, tenantID string) error
}

// RowReader reads a relational row directly by its raw storage key.
// Implementations return ErrNotFound when the key is absent.
type RowReader interface {
	GetRow(ctx context.Context, key []byte) (map[string]any, error)
}

// TenantKey prefixes key with the tenant namespace.
func TenantKey(tenantID, key string) string {
	return tenantID + "/" + key
}

// StripTenant removes the tenant namespace from a stored key.
func StripTenant(tenantID, key string) string {
	return strings.TrimPrefix(key, tenantID+"/")
}

// DefaultScanLimit bounds prefix scans when the caller passes 0.
const DefaultScanLimit = 100
