// Package projection flattens live host objects into JSON-safe records that
// can be persisted: primitives survive, related objects collapse to their id
// and everything else (functions, channels, handles) is dropped.
package projection

import (
	"encoding/json"
	"math"
	"reflect"
	"time"
)

// IDKey is the field that marks a nested object as a related record.
const IDKey = "id"

// Flatten returns a copy of obj holding only persistable fields.
func Flatten(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for key, value := range obj {
		if projected, ok := field(value); ok {
			out[key] = projected
		}
	}
	return out
}

// ID extracts the scalar id of obj, if it has one.
func ID(obj map[string]any) (any, bool) {
	raw, ok := obj[IDKey]
	if !ok {
		return nil, false
	}
	id, ok := scalar(raw)
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}

// Int64 converts a projected numeric id into an int64.
func Int64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func field(value any) (any, bool) {
	if v, ok := scalar(value); ok {
		return v, true
	}

	switch v := value.(type) {
	case map[string]any:
		return ID(v)
	case []any:
		return list(reflect.ValueOf(v))
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return list(rv)
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return ID(toStringMap(rv))
		}
	}
	return nil, false
}

func list(rv reflect.Value) (any, bool) {
	out := make([]any, 0, rv.Len())
	for i := range rv.Len() {
		elem := rv.Index(i).Interface()
		if v, ok := scalar(elem); ok {
			out = append(out, v)
			continue
		}
		if m, ok := elem.(map[string]any); ok {
			if id, ok := ID(m); ok {
				out = append(out, id)
			}
		}
	}
	return out, true
}

func scalar(value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case string, bool, json.Number:
		return v, true
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), true
	case float32:
		return scalar(float64(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
		return v, true
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, true
		}
		return scalar(rv.Elem().Interface())
	}
	return nil, false
}

func toStringMap(rv reflect.Value) map[string]any {
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out
}
