package ids

import (
	"math"
)

// Coerce converts a numeric document value to an int64 id.
// ok is false for non-numeric values and for floats with a fractional part.
func Coerce(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

// IsNumber reports whether v is any numeric type the store decodes
func IsNumber(v interface{}) bool {
	switch v.(type) {
	case int32, int64, int, float64:
		return true
	default:
		return false
	}
}

// Encode writes id using the same numeric type as like, so a rewrite does not
// change the stored bson type of a field. int32 values that no longer fit widen to int64.
func Encode(id int64, like interface{}) interface{} {
	switch like.(type) {
	case int32:
		if id >= math.MinInt32 && id <= math.MaxInt32 {
			return int32(id)
		}
		return id
	case float64:
		return float64(id)
	case int:
		return int(id)
	default:
		return id
	}
}
