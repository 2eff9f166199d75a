package revmap

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// BinaryKey builds the row key TiKV stores a TiDB record under:
//
//	"t" + 8-byte big-endian table id + "_r" + encoded primary key
//
// The primary key encoding is tenant\x00type\x00id. This is not TiDB's
// memcomparable encoding, so a direct read by this key is only a fast path;
// callers must be able to fall back to a fetch by id.
func BinaryKey(tableID uint64, tenantID, entityType, entityID string) []byte {
	pk := EncodePrimaryKey(tenantID, entityType, entityID)

	key := make([]byte, 0, 1+8+2+len(pk))
	key = append(key, 't')
	key = binary.BigEndian.AppendUint64(key, tableID)
	key = append(key, '_', 'r')
	return append(key, pk...)
}

// EncodePrimaryKey joins the clustered key columns with NUL separators.
func EncodePrimaryKey(tenantID, entityType, entityID string) []byte {
	out := make([]byte, 0, len(tenantID)+len(entityType)+len(entityID)+2)
	out = append(out, tenantID...)
	out = append(out, 0)
	out = append(out, entityType...)
	out = append(out, 0)
	return append(out, entityID...)
}

// DecodeBinaryKey splits a key produced by BinaryKey.
func DecodeBinaryKey(key []byte) (tableID uint64, pk []byte, err error) {
	if len(key) < 11 || key[0] != 't' || key[9] != '_' || key[10] != 'r' {
		return 0, nil, fmt.Errorf("not a record key: %x", key)
	}
	return binary.BigEndian.Uint64(key[1:9]), key[11:], nil
}

// ParseHexKey decodes a hex-encoded binary key as stored in the mapping records.
func ParseHexKey(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// PseudoTableID derives a stable id from the table name for servers that
// do not expose TIDB_TABLE_ID: the first four bytes of md5(name), big-endian.
func PseudoTableID(table string) uint64 {
	sum := md5.Sum([]byte(table))
	return uint64(binary.BigEndian.Uint32(sum[:4]))
}
