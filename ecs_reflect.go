package tgengine

import (
	"reflect"
)

// Archetype columns are stored as `any` holding a typed []T; these helpers
// operate on them without knowing T.

func reflectSliceMake(elem reflect.Type) any {
	return reflect.MakeSlice(reflect.SliceOf(elem), 0, 1).Interface()
}

func reflectSliceGet(slice any, idx int) reflect.Value {
	return reflect.ValueOf(slice).Index(idx)
}

func reflectSliceSet(slice any, idx int, val reflect.Value) {
	reflect.ValueOf(slice).Index(idx).Set(val)
}

// reflectSlicePtr returns *T pointing into the backing array. It stays valid
// until the column grows.
func reflectSlicePtr(slice any, idx int) any {
	return reflect.ValueOf(slice).Index(idx).Addr().Interface()
}

// reflectSliceAppendZero grows the column by one zero value.
func reflectSliceAppendZero(slice any) any {
	v := reflect.ValueOf(slice)
	return reflect.Append(v, reflect.Zero(v.Type().Elem())).Interface()
}

func reflectSliceLen(slice any) int {
	return reflect.ValueOf(slice).Len()
}
