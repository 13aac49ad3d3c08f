package template

import (
	"reflect"
	"sync"

	"github.com/fakturo/fakturo/internal/types"
)

// resolvePath walks a dotted path one segment at a time. At each step a
// keyed mapping wins, then a FieldResolver, then an accessor method located
// through the process-wide method cache. A path that cannot be resolved at
// any step yields (nil, false), which renders as empty output.
func resolvePath(current interface{}, path []string) (interface{}, bool) {
	for _, segment := range path {
		next, ok := resolveSegment(current, segment)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func resolveSegment(current interface{}, segment string) (interface{}, bool) {
	if current == nil {
		return nil, false
	}

	switch m := current.(type) {
	case map[string]interface{}:
		v, ok := m[segment]
		return v, ok
	case map[string]string:
		v, ok := m[segment]
		return v, ok
	}

	if r, ok := current.(types.FieldResolver); ok {
		if v, found := r.Field(segment); found {
			return v, true
		}
	}

	return callAccessor(current, segment)
}

// accessorKey identifies one cached accessor lookup.
type accessorKey struct {
	typ  reflect.Type
	name string
}

// accessorCache amortizes reflection lookups per (concrete type, segment
// name) for the process lifetime. First writer for a key wins; a racing
// duplicate lookup is wasted work, not a correctness bug.
var accessorCache sync.Map // accessorKey -> accessorFn

type accessorFn func(receiver reflect.Value) (interface{}, bool)

// callAccessor attempts capability-style property access for the segment:
// a Get-prefixed accessor, then an Is-prefixed boolean accessor, then a
// zero-argument method matching the segment name exactly.
func callAccessor(current interface{}, segment string) (interface{}, bool) {
	receiver := reflect.ValueOf(current)
	key := accessorKey{typ: receiver.Type(), name: segment}

	if cached, ok := accessorCache.Load(key); ok {
		return cached.(accessorFn)(receiver)
	}

	fn := buildAccessor(receiver.Type(), segment)
	actual, _ := accessorCache.LoadOrStore(key, fn)
	return actual.(accessorFn)(receiver)
}

func buildAccessor(typ reflect.Type, segment string) accessorFn {
	title := titleCase(segment)

	for _, name := range []string{"Get" + title, "Is" + title, title, segment} {
		method, ok := typ.MethodByName(name)
		if !ok {
			continue
		}
		// Zero-arg (beyond the receiver), at least one return value.
		if method.Type.NumIn() != 1 || method.Type.NumOut() == 0 {
			continue
		}

		index := method.Index
		return func(receiver reflect.Value) (interface{}, bool) {
			out := receiver.Method(index).Call(nil)
			return out[0].Interface(), true
		}
	}

	// Exported struct field fallback.
	structType := typ
	if structType.Kind() == reflect.Ptr {
		structType = structType.Elem()
	}
	if structType.Kind() == reflect.Struct {
		if field, ok := structType.FieldByName(title); ok && field.IsExported() {
			fieldIndex := field.Index
			return func(receiver reflect.Value) (interface{}, bool) {
				v := receiver
				if v.Kind() == reflect.Ptr {
					if v.IsNil() {
						return nil, false
					}
					v = v.Elem()
				}
				return v.FieldByIndex(fieldIndex).Interface(), true
			}
		}
	}

	return func(reflect.Value) (interface{}, bool) { return nil, false }
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}

// elements flattens a resolved collection value into its elements. Both
// ordered sequences and fixed-size arrays are supported; any other shape
// yields no elements.
func elements(collection interface{}) []interface{} {
	if collection == nil {
		return nil
	}

	if direct, ok := collection.([]interface{}); ok {
		return direct
	}

	v := reflect.ValueOf(collection)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = v.Index(i).Interface()
		}
		return out
	default:
		return nil
	}
}
