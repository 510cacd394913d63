package record

import (
	"fmt"
	"reflect"
)

// Placeholders substituted for context values that cannot be walked to the end.
const (
	CyclePlaceholder = "<cycle>"
	DepthPlaceholder = "<too deep>"
)

// maxDepth bounds how far context values are walked.
const maxDepth = 64

// visitKey identifies a map, slice or pointer on the current walk path.
// Slices carry their length so a sub-slice sharing the backing array is a
// different node.
type visitKey struct {
	ptr uintptr
	len int
}

// sanitize returns v unchanged when it is acyclic and no deeper than
// maxDepth. Otherwise maps, slices and arrays on the way to the offending
// node are rebuilt as map[string]any / []any with that node replaced by a
// placeholder; any other value holding one is replaced whole.
// Neither the JSON encoder nor fmt detects cycles, and a stack overflow
// cannot be recovered.
func sanitize(v any) any {
	return clean(reflect.ValueOf(v), 0, map[visitKey]struct{}{})
}

func clean(v reflect.Value, depth int, path map[visitKey]struct{}) any {
	issue := check(v, depth, path)
	if issue == "" {
		if !v.IsValid() {
			return nil
		}
		return v.Interface()
	}
	if depth > maxDepth {
		return issue
	}
	if k, ok := refKey(v); ok {
		if _, seen := path[k]; seen {
			return issue
		}
		path[k] = struct{}{}
		defer delete(path, k)
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		return clean(v.Elem(), depth+1, path)
	case reflect.Map:
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[keyString(iter.Key())] = clean(iter.Value(), depth+1, path)
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = clean(v.Index(i), depth+1, path)
		}
		return out
	}
	return issue
}

// check walks v and reports the placeholder for the first cycle or depth
// overrun it finds, or "" when v is safe to encode. Unexported struct fields
// are skipped; the encoder ignores them.
func check(v reflect.Value, depth int, path map[visitKey]struct{}) string {
	if !v.IsValid() {
		return ""
	}
	if depth > maxDepth {
		return DepthPlaceholder
	}
	if k, ok := refKey(v); ok {
		if _, seen := path[k]; seen {
			return CyclePlaceholder
		}
		path[k] = struct{}{}
		defer delete(path, k)
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		return check(v.Elem(), depth+1, path)
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if issue := check(iter.Value(), depth+1, path); issue != "" {
				return issue
			}
		}
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return ""
		}
		for i := 0; i < v.Len(); i++ {
			if issue := check(v.Index(i), depth+1, path); issue != "" {
				return issue
			}
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if issue := check(v.Field(i), depth+1, path); issue != "" {
				return issue
			}
		}
	}
	return ""
}

func refKey(v reflect.Value) (visitKey, bool) {
	switch v.Kind() {
	case reflect.Map, reflect.Pointer:
		if v.IsNil() {
			return visitKey{}, false
		}
		return visitKey{ptr: v.Pointer()}, true
	case reflect.Slice:
		if v.IsNil() || v.Len() == 0 {
			return visitKey{}, false
		}
		return visitKey{ptr: v.Pointer(), len: v.Len()}, true
	}
	return visitKey{}, false
}

// keyString renders a map key for a rebuilt map[string]any.
func keyString(k reflect.Value) string {
	switch k.Kind() {
	case reflect.String:
		return k.String()
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return fmt.Sprint(k.Interface())
	}
	return k.Type().String()
}
