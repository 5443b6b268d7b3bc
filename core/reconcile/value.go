package reconcile

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// normalized is the comparable form of an attribute value: a sorted set of
// canonical strings. Scalars become one-element sets, absent values and empty
// collections become null.
type normalized struct {
	null    bool
	values  []string
	anomaly bool
}

func (n normalized) key() string {
	switch {
	case n.anomaly:
		return "\x01"
	case n.null:
		return "\x00"
	default:
		return strings.Join(n.values, "\x1e")
	}
}

func normalize(v any, ignoreCase bool) normalized {
	if v == nil {
		return normalized{null: true}
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return normalized{null: true}
	}
	// sql.Null* values report null through Value.
	if dv, ok := v.(driver.Valuer); ok {
		val, err := dv.Value()
		if err != nil {
			return normalized{anomaly: true}
		}
		if val == nil {
			return normalized{null: true}
		}
		return normalize(val, ignoreCase)
	}

	if s, ok := canonicalScalar(v); ok {
		return normalized{values: []string{foldCase(s, ignoreCase)}}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return normalized{null: true}
		}
		return normalize(rv.Elem().Interface(), ignoreCase)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return normalized{null: true}
		}
		seen := make(map[string]struct{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem := rv.Index(i).Interface()
			if elem == nil {
				continue
			}
			s, ok := canonicalScalar(elem)
			if !ok {
				return normalized{anomaly: true}
			}
			seen[foldCase(s, ignoreCase)] = struct{}{}
		}
		if len(seen) == 0 {
			return normalized{null: true}
		}
		values := make([]string, 0, len(seen))
		for s := range seen {
			values = append(values, s)
		}
		sort.Strings(values)
		return normalized{values: values}
	default:
		return normalized{anomaly: true}
	}
}

func foldCase(s string, ignoreCase bool) string {
	if ignoreCase {
		return strings.ToLower(s)
	}
	return s
}

// canonicalScalar renders a scalar value as a string so that values read from
// the store (typed) and from the index (mostly strings and float64) line up.
func canonicalScalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.FormatInt(int64(t), 10), true
	case int8:
		return strconv.FormatInt(int64(t), 10), true
	case int16:
		return strconv.FormatInt(int64(t), 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint8:
		return strconv.FormatUint(uint64(t), 10), true
	case uint16:
		return strconv.FormatUint(uint64(t), 10), true
	case uint32:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case time.Time:
		return t.UTC().Format(time.RFC3339), true
	case fmt.Stringer:
		if dv, ok := v.(driver.Valuer); ok {
			return canonicalValuer(dv)
		}
		return t.String(), true
	case driver.Valuer:
		return canonicalValuer(t)
	default:
		return "", false
	}
}

func canonicalValuer(v driver.Valuer) (string, bool) {
	val, err := v.Value()
	if err != nil || val == nil {
		return "", false
	}
	return canonicalScalar(val)
}

// valuesEqual compares two attribute values. Null equals only null. A value
// that cannot be normalized never equals anything, including itself.
func valuesEqual(a, b any, ignoreCase bool) (equal bool, anomaly bool) {
	na := normalize(a, ignoreCase)
	nb := normalize(b, ignoreCase)
	if na.anomaly || nb.anomaly {
		return false, true
	}
	if na.null || nb.null {
		return na.null && nb.null, false
	}
	if len(na.values) != len(nb.values) {
		return false, false
	}
	for i := range na.values {
		if na.values[i] != nb.values[i] {
			return false, false
		}
	}
	return true, false
}

// CanonicalString renders a value the way the comparator sees it. Multi-valued
// attributes are joined with commas; null renders as the empty string.
func CanonicalString(v any) string {
	n := normalize(v, false)
	if n.null || n.anomaly {
		return ""
	}
	return strings.Join(n.values, ",")
}
