package record

// PositionMap maps an attribute name to its zero-based position in the
// attribute list it was built from.
type PositionMap map[string]int

// NewPositionMap builds the name to position mapping for attrs. Names are
// expected to be unique; when a name repeats, the last occurrence wins.
func NewPositionMap(attrs []string) PositionMap {
	positions := make(PositionMap, len(attrs))
	for idx, name := range attrs {
		positions[name] = idx
	}
	return positions
}

// Position returns the position of name and true if name is a declared
// attribute.
func (m PositionMap) Position(name string) (int, bool) {
	idx, ok := m[name]
	return idx, ok
}
