package engine

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/duckdb/duckdb-go/v2"
)

// RowSet is a rectangular query result with JSON-safe values.
type RowSet struct {
	Columns []string
	Rows    [][]any
}

// Count returns the number of rows.
func (r *RowSet) Count() int {
	return len(r.Rows)
}

// Preview returns up to n leading rows as column -> value records.
func (r *RowSet) Preview(n int) []map[string]any {
	if n > len(r.Rows) || n < 0 {
		n = len(r.Rows)
	}
	out := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		rec := make(map[string]any, len(r.Columns))
		for j, col := range r.Columns {
			if j < len(r.Rows[i]) {
				rec[col] = r.Rows[i][j]
			}
		}
		out[i] = rec
	}
	return out
}

func normalizeRow(values []any) []any {
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = normalizeValue(v)
	}
	return row
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case *big.Int:
		if val == nil {
			return nil
		}
		if val.IsInt64() {
			return val.Int64()
		}
		return val.String()
	case duckdb.Decimal:
		return finite(val.Float64())
	case float64:
		return finite(val)
	case float32:
		return finite(float64(val))
	case duckdb.Map:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(normalizeValue(k))] = normalizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeValue(item)
		}
		return out
	case []any:
		return normalizeRow(val)
	case fmt.Stringer:
		return val.String()
	default:
		return val
	}
}

// finite maps NaN and infinities, which JSON cannot carry, to null.
func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
