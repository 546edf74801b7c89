package models

import (
	"fmt"
	"reflect"
)

// Merge deep-merges patch into the struct pointed to by dst.
//
// Fields are matched by name. A nil pointer, map or slice in the patch leaves the
// destination untouched. Nested structs are merged field by field, maps are merged key by
// key and slices replace the destination. Patch fields with no counterpart in dst are
// ignored.
//
// Merge panics if dst is not a pointer to a struct or patch is not a struct (or a
// pointer to one), or if a matched field cannot be converted.
func Merge[T any, P any](dst *T, patch P) {
	d := reflect.ValueOf(dst).Elem()
	p := reflect.ValueOf(patch)
	if p.Kind() == reflect.Pointer {
		if p.IsNil() {
			return
		}
		p = p.Elem()
	}
	if d.Kind() != reflect.Struct || p.Kind() != reflect.Struct {
		panic(fmt.Sprintf("models.Merge: cannot merge %s into %s", p.Type(), d.Type()))
	}
	mergeStruct(d, p)
}

func mergeStruct(dst, patch reflect.Value) {
	pt := patch.Type()
	for i := 0; i < pt.NumField(); i++ {
		sf := pt.Field(i)
		if !sf.IsExported() {
			continue
		}
		df := dst.FieldByName(sf.Name)
		if !df.IsValid() || !df.CanSet() {
			continue
		}
		mergeField(df, patch.Field(i))
	}
}

func mergeField(dst, patch reflect.Value) {
	switch patch.Kind() {
	case reflect.Pointer:
		if patch.IsNil() {
			return
		}
		elem := patch.Elem()
		switch {
		case elem.Kind() == reflect.Struct && dst.Kind() == reflect.Struct:
			mergeStruct(dst, elem)
		case elem.Kind() == reflect.Struct && dst.Kind() == reflect.Pointer && dst.Type().Elem().Kind() == reflect.Struct:
			if dst.IsNil() {
				dst.Set(reflect.New(dst.Type().Elem()))
			}
			mergeStruct(dst.Elem(), elem)
		case dst.Kind() == reflect.Pointer:
			v := reflect.New(dst.Type().Elem())
			v.Elem().Set(elem.Convert(dst.Type().Elem()))
			dst.Set(v)
		default:
			dst.Set(elem.Convert(dst.Type()))
		}
	case reflect.Map:
		if patch.IsNil() {
			return
		}
		merged := reflect.MakeMapWithSize(dst.Type(), dst.Len()+patch.Len())
		iter := dst.MapRange()
		for iter.Next() {
			merged.SetMapIndex(iter.Key(), iter.Value())
		}
		iter = patch.MapRange()
		for iter.Next() {
			merged.SetMapIndex(iter.Key().Convert(dst.Type().Key()), iter.Value().Convert(dst.Type().Elem()))
		}
		dst.Set(merged)
	case reflect.Slice:
		if patch.IsNil() {
			return
		}
		out := reflect.MakeSlice(dst.Type(), patch.Len(), patch.Len())
		for i := 0; i < patch.Len(); i++ {
			out.Index(i).Set(patch.Index(i).Convert(dst.Type().Elem()))
		}
		dst.Set(out)
	case reflect.Struct:
		if dst.Kind() == reflect.Struct {
			mergeStruct(dst, patch)
			return
		}
		dst.Set(patch.Convert(dst.Type()))
	default:
		dst.Set(patch.Convert(dst.Type()))
	}
}
