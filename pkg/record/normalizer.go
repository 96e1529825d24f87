package record

// Normalizer reshapes keyed records into positional records of a fixed
// attribute list. It is built once per output port and is read-only
// afterwards, so one Normalizer may serve every invocation of that port.
type Normalizer struct {
	attrs     []string
	positions PositionMap
}

// NewNormalizer creates a Normalizer for attrs. The list is copied; later
// changes to the caller's slice do not affect the normalizer.
func NewNormalizer(attrs []string) *Normalizer {
	owned := make([]string, len(attrs))
	copy(owned, attrs)
	return &Normalizer{
		attrs:     owned,
		positions: NewPositionMap(owned),
	}
}

// Width returns the number of positions of a normalized record.
func (n *Normalizer) Width() int {
	return len(n.attrs)
}

// Attributes returns a copy of the attribute list.
func (n *Normalizer) Attributes() []string {
	out := make([]string, len(n.attrs))
	copy(out, n.attrs)
	return out
}

// Positions returns the name to position mapping.
func (n *Normalizer) Positions() PositionMap {
	return n.positions
}

// NormalizeKeyed converts a keyed record into a positional record of Width
// fields. Keys that are not declared attributes are dropped; declared
// attributes that are missing from the record stay nil. Any value that is not
// a keyed record is returned unchanged.
func (n *Normalizer) NormalizeKeyed(v Value) Value {
	keyed, ok := v.Keyed()
	if !ok {
		return v
	}
	return FromPositional(n.ToPositional(keyed))
}

// ToPositional places the declared attributes of k at their positions.
func (n *Normalizer) ToPositional(k Keyed) Positional {
	fields := make(Positional, len(n.attrs))
	for name, val := range k {
		if idx, ok := n.positions[name]; ok {
			fields[idx] = val
		}
	}
	return fields
}

// NormalizeValue returns the canonical shape of v:
//
//   - positional records, nulls and opaque values are returned unchanged;
//   - keyed records are converted with NormalizeKeyed;
//   - batches are copied element by element, keyed elements are converted and
//     every other element (nulls included) is kept as is, so the batch length
//     and order never change.
func (n *Normalizer) NormalizeValue(v Value) Value {
	switch v.Kind() {
	case KindNull, KindPositional, KindOther:
		return v
	case KindKeyed:
		return n.NormalizeKeyed(v)
	case KindBatch:
		elems, _ := v.Batch()
		out := make([]Value, len(elems))
		for i, e := range elems {
			out[i] = n.NormalizeKeyed(e)
		}
		return Batch(out...)
	}
	return v
}
