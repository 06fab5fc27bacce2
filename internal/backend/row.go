package backend

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Row is one record as a mapping of column names to values. Values keep the
// adapter's native Go types; the accessors below normalize the common ones.
type Row map[string]any

// Clone returns a shallow copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the column as a string. UUIDs decoded as 16-byte arrays are
// formatted canonically.
func (r Row) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case [16]byte:
		return uuid.UUID(v).String()
	case uuid.UUID:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int64 returns the column as an integer; non-numeric values yield 0.
func (r Row) Int64(key string) int64 {
	n, _ := toInt64(r[key])
	return n
}

// Int returns the column as an int.
func (r Row) Int(key string) int {
	return int(r.Int64(key))
}

// Time returns the column as a time. RFC 3339 timestamps and YYYY-MM-DD dates
// stored as strings are parsed.
func (r Row) Time(key string) time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
		if t, err := time.Parse(time.DateOnly, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Row returns an embedded row (joined collection), or nil.
func (r Row) Row(key string) Row {
	switch v := r[key].(type) {
	case Row:
		return v
	case map[string]any:
		return Row(v)
	}
	return nil
}

// Decode converts a structured column (JSON document) into dst.
func (r Row) Decode(key string, dst any) error {
	raw, ok := r[key]
	if !ok || raw == nil {
		return nil
	}
	var data []byte
	switch v := raw.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode column %s: %w", key, err)
		}
		data = b
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode column %s: %w", key, err)
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// CompareValues orders two column values of compatible kinds (numbers, strings,
// times). ok is false when the values cannot be compared.
func CompareValues(a, b any) (cmp int, ok bool) {
	if at, aok := a.(time.Time); aok {
		bt, bok := b.(time.Time)
		if !bok {
			return 0, false
		}
		return at.Compare(bt), true
	}
	if an, aok := toFloat(a); aok {
		bn, bok := toFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case as < bs:
		return -1, true
	case as > bs:
		return 1, true
	default:
		return 0, true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string, json.Number:
		return 0, false
	}
	i, ok := toInt64(v)
	return float64(i), ok
}
