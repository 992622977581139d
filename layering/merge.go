// Package layering overlays typed values: fields set on a stronger value win,
// zero fields fall back to weaker ones. Slices are taken wholesale from the
// strongest layer that sets them, so ordered collections are never
// interleaved.
package layering

import "reflect"

// Merge composes values ordered from strongest to weakest.
func Merge[T any](layers ...T) T {
	var zero T
	if len(layers) == 0 {
		return zero
	}

	merged := deepCopy(reflect.ValueOf(layers[len(layers)-1]))
	for i := len(layers) - 2; i >= 0; i-- {
		merged = overlay(reflect.ValueOf(layers[i]), merged)
	}
	if !merged.IsValid() {
		return zero
	}
	return merged.Interface().(T)
}

func overlay(strong, weak reflect.Value) reflect.Value {
	if !strong.IsValid() {
		return deepCopy(weak)
	}
	if !weak.IsValid() || weak.Type() != strong.Type() {
		return deepCopy(strong)
	}

	switch strong.Kind() {
	case reflect.Pointer:
		if strong.IsNil() {
			return deepCopy(weak)
		}
		if weak.IsNil() {
			return deepCopy(strong)
		}
		out := reflect.New(strong.Type().Elem())
		out.Elem().Set(overlay(strong.Elem(), weak.Elem()))
		return out
	case reflect.Struct:
		if strong.IsZero() {
			return deepCopy(weak)
		}
		// Structs without exported fields (time.Time) are taken as a whole.
		out := deepCopy(strong)
		for i := 0; i < strong.NumField(); i++ {
			field := out.Field(i)
			if !field.CanSet() {
				continue
			}
			field.Set(overlay(strong.Field(i), weak.Field(i)))
		}
		return out
	case reflect.Map:
		if strong.IsNil() {
			return deepCopy(weak)
		}
		out := deepCopy(weak)
		if out.IsNil() {
			out = reflect.MakeMapWithSize(strong.Type(), strong.Len())
		}
		iter := strong.MapRange()
		for iter.Next() {
			existing := out.MapIndex(iter.Key())
			if existing.IsValid() {
				out.SetMapIndex(iter.Key(), overlay(iter.Value(), existing))
				continue
			}
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return out
	case reflect.Slice, reflect.Interface:
		if strong.IsNil() {
			return deepCopy(weak)
		}
		return deepCopy(strong)
	default:
		if strong.IsZero() {
			return deepCopy(weak)
		}
		return deepCopy(strong)
	}
}

func deepCopy(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(deepCopy(v.Elem()))
		return out
	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(deepCopy(v.Elem()))
		return out
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			field := out.Field(i)
			if !field.CanSet() {
				continue
			}
			field.Set(deepCopy(v.Field(i)))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	default:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		return out
	}
}
