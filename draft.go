package laco

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// PatchOp describes how a top-level field was touched by a draft edit.
type PatchOp string

const (
	// PatchAdd indicates a key that did not exist before (map state only).
	PatchAdd PatchOp = "add"
	// PatchReplace indicates a field whose value changed.
	PatchReplace PatchOp = "replace"
	// PatchRemove indicates a key that was deleted (map state only).
	PatchRemove PatchOp = "remove"
)

// Patch is a field-level change record produced by Produce.
type Patch struct {
	Op    PatchOp `json:"op"`
	Field string  `json:"field"`
}

// Changes is the ordered list of top-level field names touched by a
// transition. Consumers test membership, duplicates are harmless.
type Changes []string

// Has reports whether field is part of the change set.
func (c Changes) Has(field string) bool {
	return slices.Contains(c, field)
}

// Intersects reports whether any of fields is part of the change set.
func (c Changes) Intersects(fields []string) bool {
	for _, f := range fields {
		if c.Has(f) {
			return true
		}
	}
	return false
}

// union appends the fields of extra that are not yet in c.
func (c Changes) union(extra Changes) Changes {
	out := slices.Clone(c)
	for _, f := range extra {
		if !out.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Fields maps patches to their top-level field names, preserving order.
func Fields(patches []Patch) Changes {
	if len(patches) == 0 {
		return nil
	}
	changes := make(Changes, 0, len(patches))
	for _, p := range patches {
		changes = append(changes, p.Field)
	}
	return changes
}

// Produce applies mutate to a private deep copy of base and returns the new
// value together with one patch per top-level field that differs from base.
// base itself is never modified. Writing a field to its current value
// produces no patch.
//
// State values must be plain data: maps, slices, structs, pointers and
// scalars without reference cycles. Funcs and channels are copied by
// reference. A panic inside mutate propagates to the caller.
func Produce[T any](base T, mutate func(draft *T)) (T, []Patch) {
	draft := Clone(base)
	mutate(&draft)
	return draft, Diff(base, draft)
}

// Clone returns a deep copy of v. Unexported struct fields are copied
// shallowly.
func Clone[T any](v T) T {
	src := reflect.ValueOf(&v).Elem()
	dst := reflect.New(src.Type()).Elem()
	copyValue(dst, src)
	return dst.Interface().(T)
}

func copyValue(dst, src reflect.Value) {
	switch src.Kind() {
	case reflect.Pointer:
		if src.IsNil() {
			dst.SetZero()
			return
		}
		p := reflect.New(src.Elem().Type())
		copyValue(p.Elem(), src.Elem())
		dst.Set(p)

	case reflect.Interface:
		if src.IsNil() {
			dst.SetZero()
			return
		}
		elem := src.Elem()
		c := reflect.New(elem.Type()).Elem()
		copyValue(c, elem)
		dst.Set(c)

	case reflect.Map:
		if src.IsNil() {
			dst.SetZero()
			return
		}
		m := reflect.MakeMapWithSize(src.Type(), src.Len())
		iter := src.MapRange()
		for iter.Next() {
			v := reflect.New(iter.Value().Type()).Elem()
			copyValue(v, iter.Value())
			m.SetMapIndex(iter.Key(), v)
		}
		dst.Set(m)

	case reflect.Slice:
		if src.IsNil() {
			dst.SetZero()
			return
		}
		s := reflect.MakeSlice(src.Type(), src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			copyValue(s.Index(i), src.Index(i))
		}
		dst.Set(s)

	case reflect.Array:
		for i := 0; i < src.Len(); i++ {
			copyValue(dst.Index(i), src.Index(i))
		}

	case reflect.Struct:
		dst.Set(src)
		for i := 0; i < src.NumField(); i++ {
			if dst.Field(i).CanSet() {
				copyValue(dst.Field(i), src.Field(i))
			}
		}

	default:
		dst.Set(src)
	}
}

// Diff compares prev and next field by field and returns a patch for every
// top-level field that differs. Struct fields are named after their json tag
// when one is present and skipped when tagged "-". Map keys are reported in
// sorted order and any other kind is treated as a single field named "".
func Diff[T any](prev, next T) []Patch {
	a, aok := indirect(reflect.ValueOf(&prev).Elem())
	b, bok := indirect(reflect.ValueOf(&next).Elem())

	switch {
	case !aok && !bok:
		return nil
	case !aok:
		return patchesFor(PatchAdd, fieldNames(b))
	case !bok:
		return patchesFor(PatchRemove, fieldNames(a))
	}

	if a.Type() != b.Type() {
		return patchesFor(PatchReplace, fieldNames(b))
	}

	switch a.Kind() {
	case reflect.Struct:
		var patches []Patch
		t := a.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !diffable(f) {
				continue
			}
			if !equal(a.Field(i), b.Field(i)) {
				patches = append(patches, Patch{Op: PatchReplace, Field: structFieldName(f)})
			}
		}
		return patches

	case reflect.Map:
		var patches []Patch
		for _, key := range sortedKeys(a, b) {
			av := a.MapIndex(key)
			bv := b.MapIndex(key)
			name := fmt.Sprint(key.Interface())
			switch {
			case !av.IsValid():
				patches = append(patches, Patch{Op: PatchAdd, Field: name})
			case !bv.IsValid():
				patches = append(patches, Patch{Op: PatchRemove, Field: name})
			case !equal(av, bv):
				patches = append(patches, Patch{Op: PatchReplace, Field: name})
			}
		}
		return patches

	default:
		if equal(a, b) {
			return nil
		}
		return []Patch{{Op: PatchReplace, Field: ""}}
	}
}

// AllFields returns every top-level field name of v, in the same order Diff
// would report them.
func AllFields[T any](v T) Changes {
	rv, ok := indirect(reflect.ValueOf(&v).Elem())
	if !ok {
		return nil
	}
	return fieldNames(rv)
}

func patchesFor(op PatchOp, names Changes) []Patch {
	patches := make([]Patch, 0, len(names))
	for _, n := range names {
		patches = append(patches, Patch{Op: op, Field: n})
	}
	return patches
}

func fieldNames(v reflect.Value) Changes {
	switch v.Kind() {
	case reflect.Struct:
		var names Changes
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if f := t.Field(i); diffable(f) {
				names = append(names, structFieldName(f))
			}
		}
		return names
	case reflect.Map:
		keys := sortedKeys(v, v)
		names := make(Changes, 0, len(keys))
		for _, k := range keys {
			names = append(names, fmt.Sprint(k.Interface()))
		}
		return names
	default:
		return Changes{""}
	}
}

// indirect unwraps pointers and interfaces. ok is false for nil.
func indirect(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v, false
		}
		v = v.Elem()
	}
	return v, true
}

// diffable reports whether f is part of the diff. Unexported fields and
// fields tagged `json:"-"` never reach a snapshot, so they are skipped.
func diffable(f reflect.StructField) bool {
	return f.IsExported() && f.Tag.Get("json") != "-"
}

// carryIgnored copies the exported fields Diff skips from src into dst. A
// value decoded from a snapshot uses it to keep what the snapshot dropped.
func carryIgnored[T any](dst, src T) T {
	d := reflect.ValueOf(&dst).Elem()
	if d.Kind() != reflect.Struct {
		return dst
	}
	sv := reflect.ValueOf(&src).Elem()
	t := d.Type()
	for i := 0; i < t.NumField(); i++ {
		if f := t.Field(i); f.IsExported() && !diffable(f) {
			d.Field(i).Set(sv.Field(i))
		}
	}
	return dst
}

func structFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name != "" {
		return name
	}
	return f.Name
}

func sortedKeys(a, b reflect.Value) []reflect.Value {
	seen := make(map[string]reflect.Value, a.Len()+b.Len())
	for _, m := range []reflect.Value{a, b} {
		for _, k := range m.MapKeys() {
			seen[fmt.Sprint(k.Interface())] = k
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	slices.Sort(names)
	keys := make([]reflect.Value, 0, len(names))
	for _, n := range names {
		keys = append(keys, seen[n])
	}
	return keys
}

// equal is reflect.DeepEqual except that funcs compare by code pointer,
// since DeepEqual treats every non-nil func as unequal.
func equal(a, b reflect.Value) bool {
	if a.Kind() == reflect.Func && b.Kind() == reflect.Func {
		return a.Pointer() == b.Pointer()
	}
	return reflect.DeepEqual(a.Interface(), b.Interface())
}
