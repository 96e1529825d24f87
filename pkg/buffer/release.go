// Package buffer releases zero-copy buffer-backed values that the host lends
// to user code for the duration of one invocation.
package buffer

import (
	"reflect"

	"github.com/wehubfusion/Daedalus/pkg/record"
)

// Releaser is a value backed by host-owned memory. Arrow buffers, arrays
// and records satisfy it.
type Releaser interface {
	Release()
}

// Walker is a container whose contents should be released. Walk must call
// visit once per contained value.
type Walker interface {
	Walk(visit func(any))
}

var releaserType = reflect.TypeOf((*Releaser)(nil)).Elem()

// Release walks every argument and releases each Releaser it finds.
//
// Sequences are walked element by element and mappings by value; keys are
// never visited. Records and batches are unwrapped by kind. Nil Releasers and
// values of any other type are ignored. A Releaser is released once per
// occurrence, so a buffer reachable twice is released twice.
func Release(values ...any) {
	for _, v := range values {
		walk(v, releaseOne)
	}
}

// ReleaseDistinct is Release with every Releaser released at most once, no
// matter how many of values reach it. Use it when a result may forward
// buffers taken from its arguments.
func ReleaseDistinct(values ...any) {
	seen := make(map[uintptr]struct{})
	for _, v := range values {
		walk(v, func(r Releaser) {
			if rv := reflect.ValueOf(r); rv.Kind() == reflect.Pointer {
				key := rv.Pointer()
				if _, ok := seen[key]; ok {
					return
				}
				seen[key] = struct{}{}
			}
			r.Release()
		})
	}
}

func releaseOne(r Releaser) {
	r.Release()
}

// isNil reports whether r is a typed nil
func isNil(r Releaser) bool {
	rv := reflect.ValueOf(r)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func walk(v any, visit func(Releaser)) {
	switch t := v.(type) {
	case nil:
		return
	case Releaser:
		if !isNil(t) {
			visit(t)
		}
	case record.Value:
		walkValue(t, visit)
	case record.Positional:
		for _, e := range t {
			walk(e, visit)
		}
	case []any:
		for _, e := range t {
			walk(e, visit)
		}
	case []record.Value:
		for _, e := range t {
			walkValue(e, visit)
		}
	case record.Keyed:
		for _, e := range t {
			walk(e, visit)
		}
	case map[string]any:
		for _, e := range t {
			walk(e, visit)
		}
	case Walker:
		t.Walk(func(x any) { walk(x, visit) })
	case string, []byte, bool, int, int64, float64:
		return
	default:
		walkReflect(reflect.ValueOf(v), visit)
	}
}

func walkValue(v record.Value, visit func(Releaser)) {
	switch v.Kind() {
	case record.KindNull:
	case record.KindPositional:
		p, _ := v.Positional()
		walk(p, visit)
	case record.KindKeyed:
		k, _ := v.Keyed()
		walk(k, visit)
	case record.KindBatch:
		b, _ := v.Batch()
		walk(b, visit)
	case record.KindOther:
		o, _ := v.Other()
		walk(o, visit)
	}
}

// walkReflect handles typed containers such as []*memory.Buffer or
// map[int]arrow.Array.
func walkReflect(rv reflect.Value, visit func(Releaser)) {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if !mayHoldReleaser(rv.Type().Elem()) {
			return
		}
		for i := 0; i < rv.Len(); i++ {
			visitReflect(rv.Index(i), visit)
		}
	case reflect.Map:
		if !mayHoldReleaser(rv.Type().Elem()) {
			return
		}
		iter := rv.MapRange()
		for iter.Next() {
			visitReflect(iter.Value(), visit)
		}
	}
}

func visitReflect(rv reflect.Value, visit func(Releaser)) {
	if !rv.CanInterface() {
		return
	}
	walk(rv.Interface(), visit)
}

func mayHoldReleaser(t reflect.Type) bool {
	if t.Implements(releaserType) {
		return true
	}
	switch t.Kind() {
	case reflect.Interface, reflect.Slice, reflect.Array, reflect.Map:
		return true
	case reflect.Struct:
		return t == reflect.TypeOf(record.Value{})
	}
	return false
}
