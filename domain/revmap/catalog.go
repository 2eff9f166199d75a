package revmap

import (
	"context"
	"fmt"
	"strconv"
)

// Querier runs a parameterized statement and returns rows keyed by column.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) ([]map[string]any, error)
}

// TiDBCatalog reads table metadata from TiDB's INFORMATION_SCHEMA.
type TiDBCatalog struct {
	db Querier
}

// NewTiDBCatalog creates a catalog over db.
func NewTiDBCatalog(db Querier) *TiDBCatalog {
	return &TiDBCatalog{db: db}
}

func (c *TiDBCatalog) TableID(ctx context.Context, table string) (uint64, bool, error) {
	rows, err := c.db.Query(ctx, `
		SELECT TIDB_TABLE_ID AS table_id FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_NAME = ? AND TABLE_SCHEMA = DATABASE()`, table)
	if err != nil {
		// Older servers have no TIDB_TABLE_ID column.
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	id, err := toUint64(rows[0]["table_id"])
	if err != nil {
		return 0, false, fmt.Errorf("table id for %s: %w", table, err)
	}
	return id, id != 0, nil
}

func (c *TiDBCatalog) PrimaryKey(ctx context.Context, table string) ([]Column, error) {
	rows, err := c.db.Query(ctx, `
		SELECT COLUMN_NAME AS column_name, DATA_TYPE AS data_type, COLUMN_TYPE AS column_type
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_NAME = ? AND TABLE_SCHEMA = DATABASE() AND COLUMN_KEY = 'PRI'
		ORDER BY ORDINAL_POSITION`, table)
	if err != nil {
		return nil, err
	}
	cols := make([]Column, 0, len(rows))
	for _, r := range rows {
		cols = append(cols, Column{
			Name:       toString(r["column_name"]),
			DataType:   toString(r["data_type"]),
			ColumnType: toString(r["column_type"]),
		})
	}
	return cols, nil
}

func (c *TiDBCatalog) TableExists(ctx context.Context, table string) (bool, error) {
	rows, err := c.db.Query(ctx, `
		SELECT 1 AS present FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_NAME = ? AND TABLE_SCHEMA = DATABASE()`, table)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return uint64(n), nil
	case int32:
		return uint64(n), nil
	case int:
		return uint64(n), nil
	case uint64:
		return n, nil
	case float64:
		return uint64(n), nil
	case []byte:
		return strconv.ParseUint(string(n), 10, 64)
	case string:
		return strconv.ParseUint(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}
