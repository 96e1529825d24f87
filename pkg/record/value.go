// Package record defines the record shapes exchanged between user code and
// the stream-processing host, and the normalizer that reshapes loosely-shaped
// results into fixed-width positional records.
package record

import "fmt"

// Kind identifies which shape a Value holds.
type Kind int

const (
	// KindNull is the "no value" marker. It is used both for "nothing
	// produced" and as the end-of-sequence sentinel of a source.
	KindNull Kind = iota
	// KindPositional is a fixed-width record addressed by position.
	KindPositional
	// KindKeyed is a record addressed by attribute name.
	KindKeyed
	// KindBatch is an ordered sequence of records and nulls.
	KindBatch
	// KindOther is any value that is none of the above. It is passed to the
	// host untouched.
	KindOther
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindPositional:
		return "positional"
	case KindKeyed:
		return "keyed"
	case KindBatch:
		return "batch"
	case KindOther:
		return "other"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Positional is a record addressed by position. Unset positions hold nil.
type Positional []any

// Keyed is a record addressed by attribute name.
type Keyed map[string]any

// Value is a tagged variant over the shapes user code may produce.
// The zero Value is Null.
type Value struct {
	kind       Kind
	positional Positional
	keyed      Keyed
	batch      []Value
	other      any
}

// Null returns the null Value.
func Null() Value {
	return Value{}
}

// Tuple returns a positional Value holding the given field values.
func Tuple(fields ...any) Value {
	if fields == nil {
		fields = []any{}
	}
	return Value{kind: KindPositional, positional: Positional(fields)}
}

// FromPositional wraps an existing positional record without copying it.
func FromPositional(p Positional) Value {
	if p == nil {
		p = Positional{}
	}
	return Value{kind: KindPositional, positional: p}
}

// FromKeyed wraps a keyed record without copying it.
func FromKeyed(k Keyed) Value {
	if k == nil {
		k = Keyed{}
	}
	return Value{kind: KindKeyed, keyed: k}
}

// Batch returns a batch Value. Elements keep their order; Null elements are
// kept in place.
func Batch(elems ...Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{kind: KindBatch, batch: elems}
}

// Other wraps a value that has no record shape. A nil payload yields Null.
func Other(x any) Value {
	if x == nil {
		return Null()
	}
	return Value{kind: KindOther, other: x}
}

// Kind reports the shape held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null Value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Positional returns the positional record and true if v holds one.
func (v Value) Positional() (Positional, bool) {
	if v.kind != KindPositional {
		return nil, false
	}
	return v.positional, true
}

// Keyed returns the keyed record and true if v holds one.
func (v Value) Keyed() (Keyed, bool) {
	if v.kind != KindKeyed {
		return nil, false
	}
	return v.keyed, true
}

// Batch returns the batch elements and true if v holds a batch.
func (v Value) Batch() ([]Value, bool) {
	if v.kind != KindBatch {
		return nil, false
	}
	return v.batch, true
}

// Other returns the opaque payload and true if v holds one.
func (v Value) Other() (any, bool) {
	if v.kind != KindOther {
		return nil, false
	}
	return v.other, true
}

// Len returns the number of fields of a record, the number of elements of a
// batch, and 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindPositional:
		return len(v.positional)
	case KindKeyed:
		return len(v.keyed)
	case KindBatch:
		return len(v.batch)
	}
	return 0
}

// Interface converts v back to plain Go values: nil, []any for positional
// records, map[string]any for keyed records, []any of converted elements for
// batches, and the raw payload for Other.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindPositional:
		return []any(v.positional)
	case KindKeyed:
		return map[string]any(v.keyed)
	case KindBatch:
		out := make([]any, len(v.batch))
		for i, e := range v.batch {
			out[i] = e.Interface()
		}
		return out
	case KindOther:
		return v.other
	}
	return nil
}

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindPositional:
		return fmt.Sprintf("positional%v", []any(v.positional))
	case KindKeyed:
		return fmt.Sprintf("keyed%v", map[string]any(v.keyed))
	case KindBatch:
		return fmt.Sprintf("batch%v", v.batch)
	case KindOther:
		return fmt.Sprintf("other(%v)", v.other)
	}
	return v.kind.String()
}
