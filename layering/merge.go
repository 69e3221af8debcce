package layering

import "reflect"

// MergeLayers folds snapshots ordered strongest to weakest into a single
// value. Scalars always come from the stronger snapshot, nil pointers, maps
// and slices fall through to the weaker one, and maps merge key by key so an
// explicit zero stored under a key still overrides the weaker layer.
func MergeLayers[T any](layers ...T) T {
	var zero T
	if len(layers) == 0 {
		return zero
	}

	acc := deepCopy(reflect.ValueOf(layers[len(layers)-1]))
	for i := len(layers) - 2; i >= 0; i-- {
		acc = overlay(reflect.ValueOf(layers[i]), acc)
	}
	if !acc.IsValid() {
		return zero
	}
	target := reflect.TypeOf(zero)
	if target != nil && acc.Type() != target {
		out := reflect.New(target).Elem()
		out.Set(acc.Convert(target))
		return out.Interface().(T)
	}
	return acc.Interface().(T)
}

// Clone returns a deep copy of value so snapshots held by a Layer or Stack
// cannot be mutated through the caller's reference.
func Clone[T any](value T) T {
	copied := deepCopy(reflect.ValueOf(value))
	if !copied.IsValid() {
		var zero T
		return zero
	}
	return copied.Interface().(T)
}

func overlay(top, base reflect.Value) reflect.Value {
	if !top.IsValid() {
		return deepCopy(base)
	}

	switch top.Kind() {
	case reflect.Pointer:
		if top.IsNil() {
			return deepCopy(base)
		}
		var baseElem reflect.Value
		if base.IsValid() && base.Kind() == reflect.Pointer && !base.IsNil() {
			baseElem = base.Elem()
		}
		out := reflect.New(top.Type().Elem())
		out.Elem().Set(overlay(top.Elem(), baseElem))
		return out
	case reflect.Interface:
		if top.IsNil() {
			return deepCopy(base)
		}
		var baseElem reflect.Value
		if base.IsValid() && !base.IsNil() {
			baseElem = base.Elem()
		}
		return overlay(top.Elem(), baseElem).Convert(top.Type())
	case reflect.Struct:
		out := reflect.New(top.Type()).Elem()
		sameType := base.IsValid() && base.Type() == top.Type()
		for i := 0; i < top.NumField(); i++ {
			field := out.Field(i)
			if !field.CanSet() {
				continue
			}
			var baseField reflect.Value
			if sameType {
				baseField = base.Field(i)
			}
			field.Set(overlay(top.Field(i), baseField))
		}
		return out
	case reflect.Map:
		if top.IsNil() {
			return deepCopy(base)
		}
		out := reflect.MakeMapWithSize(top.Type(), top.Len())
		if base.IsValid() && base.Kind() == reflect.Map && !base.IsNil() {
			for it := base.MapRange(); it.Next(); {
				out.SetMapIndex(it.Key(), deepCopy(it.Value()))
			}
		}
		for it := top.MapRange(); it.Next(); {
			if existing := out.MapIndex(it.Key()); existing.IsValid() {
				out.SetMapIndex(it.Key(), overlay(it.Value(), existing))
				continue
			}
			out.SetMapIndex(it.Key(), deepCopy(it.Value()))
		}
		return out
	case reflect.Slice:
		if top.IsNil() {
			return deepCopy(base)
		}
		return deepCopy(top)
	default:
		return deepCopy(top)
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
		elem := deepCopy(v.Elem())
		if !elem.IsValid() {
			return reflect.Zero(v.Type())
		}
		return elem.Convert(v.Type())
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if field := out.Field(i); field.CanSet() {
				field.Set(deepCopy(v.Field(i)))
			}
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		for it := v.MapRange(); it.Next(); {
			out.SetMapIndex(it.Key(), deepCopy(it.Value()))
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
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
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
