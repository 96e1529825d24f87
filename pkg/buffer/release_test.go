package buffer

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Daedalus/pkg/operator"
	"github.com/wehubfusion/Daedalus/pkg/record"
)

// countingReleaser counts Release calls
type countingReleaser struct {
	releases int
}

func (c *countingReleaser) Release() { c.releases++ }

func TestRelease_ArrowBuffersInNestedContainers(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	buf1 := NewBuffer(mem, []byte("first"))
	buf2 := NewBuffer(mem, []byte("second"))
	buf3 := NewBuffer(mem, []byte("third"))
	require.NotZero(t, mem.CurrentAlloc())

	Release([]any{
		map[string]any{"a": buf1},
		[]any{buf2, nil},
		buf3,
	})

	assert.Equal(t, 0, mem.CurrentAlloc())
}

func TestRelease_ExactlyOncePerOccurrence(t *testing.T) {
	b1, b2, b3 := &countingReleaser{}, &countingReleaser{}, &countingReleaser{}

	Release([]any{
		map[string]any{"a": b1},
		[]any{b2, nil},
		b3,
	})

	assert.Equal(t, 1, b1.releases)
	assert.Equal(t, 1, b2.releases)
	assert.Equal(t, 1, b3.releases)
}

func TestRelease_RecordValues(t *testing.T) {
	inPositional := &countingReleaser{}
	inKeyed := &countingReleaser{}
	inBatch := &countingReleaser{}
	opaque := &countingReleaser{}

	Release(
		record.Tuple(1, inPositional),
		record.FromKeyed(record.Keyed{"k": inKeyed}),
		record.Batch(record.Null(), record.Tuple(inBatch)),
		record.Other(opaque),
		record.Null(),
	)

	for name, r := range map[string]*countingReleaser{
		"positional": inPositional,
		"keyed":      inKeyed,
		"batch":      inBatch,
		"other":      opaque,
	} {
		assert.Equal(t, 1, r.releases, name)
	}
}

func TestRelease_OperatorArgs(t *testing.T) {
	pos := &countingReleaser{}
	named := &countingReleaser{}

	Release(operator.Args{
		Positional: []any{pos, "text"},
		Keyed:      map[string]any{"blob": named},
	})

	assert.Equal(t, 1, pos.releases)
	assert.Equal(t, 1, named.releases)
}

func TestRelease_TypedContainers(t *testing.T) {
	a, b, c := &countingReleaser{}, &countingReleaser{}, &countingReleaser{}

	Release(
		[]*countingReleaser{a},
		map[int]Releaser{1: b},
		[2][]any{{c}, nil},
	)

	assert.Equal(t, 1, a.releases)
	assert.Equal(t, 1, b.releases)
	assert.Equal(t, 1, c.releases)
}

func TestRelease_MapKeysAreNotVisited(t *testing.T) {
	key := &countingReleaser{}
	val := &countingReleaser{}

	Release(map[*countingReleaser]*countingReleaser{key: val})

	assert.Equal(t, 0, key.releases)
	assert.Equal(t, 1, val.releases)
}

func TestRelease_IgnoresOtherValues(t *testing.T) {
	assert.NotPanics(t, func() {
		Release(nil, 1, "s", []byte("raw"), []int{1, 2}, struct{ X int }{1}, map[string]int{"a": 1})
	})
}

func TestRelease_IgnoresNilBuffers(t *testing.T) {
	assert.NotPanics(t, func() {
		Release(
			(*memory.Buffer)(nil),
			[]any{(*memory.Buffer)(nil)},
			[]*memory.Buffer{nil},
			map[string]Releaser{"unset": nil},
			record.Tuple((*memory.Buffer)(nil)),
		)
		ReleaseDistinct([]*memory.Buffer{nil, nil})
	})
}

func TestRelease_Repeated(t *testing.T) {
	r := &countingReleaser{}
	Release([]any{r, r})
	assert.Equal(t, 2, r.releases)
}

func TestReleaseDistinct(t *testing.T) {
	shared := &countingReleaser{}
	own := &countingReleaser{}

	ReleaseDistinct(
		record.Tuple(shared),
		record.FromKeyed(record.Keyed{"a": shared, "b": own}),
		[]any{shared},
	)

	assert.Equal(t, 1, shared.releases)
	assert.Equal(t, 1, own.releases)
}

func TestReleaseDistinct_KeepsOwnerReference(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	owned := NewBuffer(mem, []byte("payload"))
	owned.Retain()

	// argument and result both reach the same buffer
	ReleaseDistinct(record.Tuple(owned), record.FromKeyed(record.Keyed{"payload": owned}))
	assert.Equal(t, []byte("payload"), owned.Bytes())

	owned.Release()
}
