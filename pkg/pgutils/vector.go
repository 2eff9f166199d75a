// Package pgutils holds helpers shared by the SQL backends.
package pgutils

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrEmptyVector is returned by VectorLiteral for a zero-length vector.
var ErrEmptyVector = errors.New("empty vector")

// FormatVector renders v as "[0.1,0.2,0.3]". pgvector accepts this text for
// the vector type and TiDB parses the same form in VEC_*_DISTANCE and
// VEC_FROM_TEXT, so one literal serves both backends.
func FormatVector(v []float32) string {
	var buf strings.Builder
	buf.Grow(len(v)*12 + 2)
	buf.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	buf.WriteByte(']')
	return buf.String()
}

// VectorLiteral is FormatVector for query parameters. Both servers reject
// empty vectors and NaN or infinite components, so those fail here instead
// of as a driver error.
func VectorLiteral(v []float32) (string, error) {
	if len(v) == 0 {
		return "", ErrEmptyVector
	}
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return "", fmt.Errorf("vector component %d is not finite: %v", i, f)
		}
	}
	return FormatVector(v), nil
}
