// Package serialize turns arbitrary runtime values into a bounded, JSON-safe
// representation built only from nil, booleans, numbers, strings, []any
// sequences, and map[string]any mappings. It is cycle-safe and depth-bounded:
// termination is guaranteed by MaxDepth x MaxArray x MaxProps regardless of
// input shape, including self-referential graphs.
package serialize

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Markers emitted in place of values the serializer refuses to descend into.
const (
	CircularMarker   = "[Circular]"
	ObjectMarker     = "[Object]"
	TruncationSuffix = "…"
)

// Handle is implemented by environment-specific handle types (for example a
// UI element) that should serialize to a short tag string instead of being
// recursed into.
type Handle interface {
	// HandleTag returns a short identifying tag such as "div#app".
	HandleTag() string
}

// Options bounds the size and depth of serialized output.
type Options struct {
	MaxDepth        int `mapstructure:"max_depth" json:"maxDepth"`                // Maximum nesting depth before shallow markers are emitted
	MaxProps        int `mapstructure:"max_props" json:"maxProps"`                // Maximum keys serialized per mapping
	MaxArray        int `mapstructure:"max_array" json:"maxArray"`                // Maximum elements serialized per sequence
	MaxStringLength int `mapstructure:"max_string_length" json:"maxStringLength"` // Maximum characters retained per string
}

// DefaultOptions returns the capture limits used when no configuration is
// supplied.
func DefaultOptions() Options {
	return Options{
		MaxDepth:        5,
		MaxProps:        50,
		MaxArray:        100,
		MaxStringLength: 500,
	}
}

// valueKind is the closed classification a value is dispatched on. Every
// runtime value maps onto exactly one tag, which keeps the serializer total.
type valueKind int

const (
	kindNil valueKind = iota
	kindPrimitive
	kindBigNumber
	kindString
	kindCallable
	kindError
	kindDate
	kindHandle
	kindArrayLike
	kindMapLike
	kindPointer
	kindOpaque
)

// classify probes a value and returns its variant tag together with the
// reflect value used for traversal.
func classify(v any) (valueKind, reflect.Value) {
	if v == nil {
		return kindNil, reflect.Value{}
	}

	switch v.(type) {
	case bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr,
		float32, float64:
		return kindPrimitive, reflect.Value{}
	case string:
		return kindString, reflect.Value{}
	case *big.Int, *big.Float, *big.Rat, complex64, complex128:
		return kindBigNumber, reflect.Value{}
	case time.Time, *time.Time:
		return kindDate, reflect.Value{}
	}

	if _, ok := v.(Handle); ok {
		return kindHandle, reflect.Value{}
	}
	if _, ok := v.(error); ok {
		return kindError, reflect.Value{}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		return kindCallable, rv
	case reflect.Slice, reflect.Array:
		return kindArrayLike, rv
	case reflect.Map, reflect.Struct:
		return kindMapLike, rv
	case reflect.Pointer, reflect.Interface:
		return kindPointer, rv
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		// Named primitive types (e.g. type Level string handled above as
		// kindString only for untyped string; named kinds land here).
		return kindPrimitive, rv
	case reflect.String:
		return kindString, rv
	case reflect.Complex64, reflect.Complex128:
		return kindBigNumber, rv
	default:
		return kindOpaque, rv
	}
}

// Value serializes v into the bounded JSON-safe representation.
func Value(v any, opts Options) any {
	return walk(v, opts, 0, map[uintptr]struct{}{})
}

// walk applies the serialization rules in priority order. The visiting set
// holds the pointer identities of the ancestors on the current recursion
// path; membership must not leak across sibling branches, so every addition
// is removed before walk returns.
func walk(v any, opts Options, depth int, visiting map[uintptr]struct{}) any {
	kind, rv := classify(v)

	switch kind {
	case kindNil:
		return nil
	case kindPrimitive:
		if rv.IsValid() {
			return primitive(rv)
		}
		return v
	case kindBigNumber:
		return fmt.Sprint(v)
	case kindString:
		s, ok := v.(string)
		if !ok {
			s = rv.String()
		}
		return truncateString(s, opts.MaxStringLength)
	case kindCallable:
		return functionMarker(rv)
	case kindError:
		return errorValue(v.(error), opts)
	case kindDate:
		return dateValue(v)
	case kindHandle:
		return fmt.Sprintf("<%s>", v.(Handle).HandleTag())
	case kindPointer:
		return walkPointer(rv, opts, depth, visiting)
	case kindArrayLike:
		return walkArray(rv, opts, depth, visiting)
	case kindMapLike:
		return walkMapping(rv, opts, depth, visiting)
	default:
		return fmt.Sprintf("[%T]", v)
	}
}

// primitive converts a possibly named primitive to its underlying value.
func primitive(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	default:
		return rv.Interface()
	}
}

// truncateString trims s to max characters and appends the truncation suffix.
// The suffix does not count against the limit.
func truncateString(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + TruncationSuffix
}

// functionMarker serializes a callable to a marker string containing its name.
func functionMarker(rv reflect.Value) string {
	name := "anonymous"
	if fn := runtime.FuncForPC(rv.Pointer()); fn != nil && fn.Name() != "" {
		name = fn.Name()
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
	}
	return fmt.Sprintf("[Function: %s]", name)
}

// errorValue serializes an error-like value to {name, message, stack}.
// Errors are never recursed into further.
func errorValue(err error, opts Options) map[string]any {
	name := reflect.TypeOf(err).String()
	name = strings.TrimPrefix(name, "*")
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}

	stack := ""
	if st, ok := err.(interface{ Stack() string }); ok {
		stack = st.Stack()
	}

	return map[string]any{
		"name":    name,
		"message": truncateString(err.Error(), opts.MaxStringLength),
		"stack":   stack,
	}
}

// dateValue serializes a time value to an ISO-8601 string.
func dateValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.Format(time.RFC3339Nano)
	}
	return nil
}

// walkPointer dereferences pointers and interfaces. Pointers participate in
// cycle detection so self-referential linked structures terminate.
func walkPointer(rv reflect.Value, opts Options, depth int, visiting map[uintptr]struct{}) any {
	if rv.IsNil() {
		return nil
	}
	if rv.Kind() == reflect.Interface {
		return walk(rv.Elem().Interface(), opts, depth, visiting)
	}

	id := rv.Pointer()
	if _, seen := visiting[id]; seen {
		return CircularMarker
	}
	visiting[id] = struct{}{}
	defer delete(visiting, id)

	return walk(rv.Elem().Interface(), opts, depth, visiting)
}

// walkArray serializes at most MaxArray elements in original order, appending
// a "N more" marker when truncated.
func walkArray(rv reflect.Value, opts Options, depth int, visiting map[uintptr]struct{}) any {
	length := rv.Len()

	if rv.Kind() == reflect.Slice {
		if rv.IsNil() {
			return nil
		}
		id := rv.Pointer()
		if _, seen := visiting[id]; seen {
			return CircularMarker
		}
		visiting[id] = struct{}{}
		defer delete(visiting, id)
	}

	if depth >= opts.MaxDepth {
		return fmt.Sprintf("[Array(%d)]", length)
	}

	limit := length
	if opts.MaxArray > 0 && limit > opts.MaxArray {
		limit = opts.MaxArray
	}

	out := make([]any, 0, limit+1)
	for i := 0; i < limit; i++ {
		out = append(out, walk(rv.Index(i).Interface(), opts, depth+1, visiting))
	}
	if limit < length {
		out = append(out, fmt.Sprintf("%s %d more", TruncationSuffix, length-limit))
	}
	return out
}

// walkMapping serializes at most MaxProps keys of a map or struct. Map keys
// are sorted for deterministic output; struct fields keep declaration order.
func walkMapping(rv reflect.Value, opts Options, depth int, visiting map[uintptr]struct{}) any {
	if rv.Kind() == reflect.Map {
		if rv.IsNil() {
			return nil
		}
		id := rv.Pointer()
		if _, seen := visiting[id]; seen {
			return CircularMarker
		}
		visiting[id] = struct{}{}
		defer delete(visiting, id)
	}

	if depth >= opts.MaxDepth {
		return ObjectMarker
	}

	out := make(map[string]any)
	switch rv.Kind() {
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		byKey := make(map[string]reflect.Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprint(iter.Key().Interface())
			keys = append(keys, key)
			byKey[key] = iter.Value()
		}
		sort.Strings(keys)

		limit := len(keys)
		if opts.MaxProps > 0 && limit > opts.MaxProps {
			limit = opts.MaxProps
		}
		for _, key := range keys[:limit] {
			out[key] = walk(byKey[key].Interface(), opts, depth+1, visiting)
		}
		if limit < len(keys) {
			out[TruncationSuffix] = fmt.Sprintf("%d more", len(keys)-limit)
		}
	case reflect.Struct:
		rt := rv.Type()
		count := 0
		total := 0
		for i := 0; i < rt.NumField(); i++ {
			if !rt.Field(i).IsExported() {
				continue
			}
			total++
			if opts.MaxProps > 0 && count >= opts.MaxProps {
				continue
			}
			out[rt.Field(i).Name] = walk(rv.Field(i).Interface(), opts, depth+1, visiting)
			count++
		}
		if count < total {
			out[TruncationSuffix] = fmt.Sprintf("%d more", total-count)
		}
	}
	return out
}

// Preview renders a best-effort single-line preview of the given values. It
// never panics out of the capture path: values that cannot be stringified
// fall back to fmt coercion.
func Preview(values []any, opts Options) (preview string) {
	defer func() {
		if r := recover(); r != nil {
			preview = fmt.Sprint(values...)
		}
	}()

	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, previewOne(v, opts))
	}
	return strings.Join(parts, " ")
}

func previewOne(v any, opts Options) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return truncateString(t, opts.MaxStringLength)
	case error:
		return fmt.Sprintf("%s: %s", errorValue(t, opts)["name"], t.Error())
	}

	safe := Value(v, opts)
	switch safe.(type) {
	case bool, int64, uint64, float64, string:
		return fmt.Sprint(safe)
	}

	encoded, err := json.Marshal(safe)
	if err != nil {
		return fmt.Sprint(v)
	}
	return truncateString(string(encoded), opts.MaxStringLength)
}
