package record

// From converts a loosely-shaped Go value into a Value.
//
// Top-level rules:
//
//	nil                   -> Null
//	Value                 -> itself
//	Positional            -> positional record
//	Keyed, map[string]any -> keyed record
//	[]Value, []any        -> batch
//	anything else         -> Other
//
// Inside a batch an []any element is a positional record rather than a nested
// batch, so a producer that only has one sequence type (JavaScript arrays,
// decoded JSON) returns a single positional record as [[a, b]].
func From(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case Positional:
		return FromPositional(t)
	case Keyed:
		return FromKeyed(t)
	case map[string]any:
		return FromKeyed(Keyed(t))
	case []Value:
		return Batch(t...)
	case []any:
		elems := make([]Value, len(t))
		for i, e := range t {
			elems[i] = FromElement(e)
		}
		return Batch(elems...)
	}
	return Other(x)
}

// FromElement converts one element of a batch or one item of a source: an
// []any is a positional record and everything else follows From.
func FromElement(x any) Value {
	switch t := x.(type) {
	case []any:
		return FromPositional(Positional(t))
	case []Value:
		// a nested batch is not a record shape; keep it opaque
		return Other(t)
	}
	return From(x)
}
