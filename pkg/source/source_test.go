package source

import (
	"errors"
	"fmt"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Daedalus/pkg/record"
)

// countingIterator records how often Next is called
type countingIterator struct {
	inner Iterator
	calls int
}

func (c *countingIterator) Next() (record.Value, error) {
	c.calls++
	return c.inner.Next()
}

func scalars(xs ...any) []record.Value {
	out := make([]record.Value, len(xs))
	for i, x := range xs {
		out[i] = record.Other(x)
	}
	return out
}

func TestWrapSource_SkipsNullsAndStaysExhausted(t *testing.T) {
	it := &countingIterator{inner: FromValues(scalars(1, nil, 2, nil, nil, 3)...)}
	pull := WrapSource(it)

	var got []any
	for i := 0; i < 3; i++ {
		v, err := pull()
		require.NoError(t, err)
		x, ok := v.Other()
		require.True(t, ok)
		got = append(got, x)
	}
	assert.Equal(t, []any{1, 2, 3}, got)

	v, err := pull()
	require.NoError(t, err)
	assert.True(t, v.IsNull())
	callsAtExhaustion := it.calls

	for i := 0; i < 5; i++ {
		v, err := pull()
		require.NoError(t, err)
		assert.True(t, v.IsNull())
	}
	assert.Equal(t, callsAtExhaustion, it.calls, "iterator must not be advanced after exhaustion")
}

func TestWrapSource_EmptyIterator(t *testing.T) {
	pull := WrapSource(FromValues())

	v, err := pull()
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestWrapSource_OnlyNulls(t *testing.T) {
	pull := WrapSource(FromValues(record.Null(), record.Null()))

	v, err := pull()
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestWrapSource_ReturnsRecords(t *testing.T) {
	pull := WrapSource(FromValues(
		record.Tuple(1, "a"),
		record.FromKeyed(record.Keyed{"k": 2}),
	))

	v, err := pull()
	require.NoError(t, err)
	assert.Equal(t, record.Tuple(1, "a"), v)

	v, err = pull()
	require.NoError(t, err)
	assert.Equal(t, record.KindKeyed, v.Kind())
}

func TestWrapSource_WrappedExhaustion(t *testing.T) {
	calls := 0
	pull := WrapSource(Func(func() (record.Value, error) {
		calls++
		return record.Null(), fmt.Errorf("reader closed: %w", ErrExhausted)
	}))

	v, err := pull()
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	_, _ = pull()
	assert.Equal(t, 1, calls)
}

func TestWrapSource_PropagatesErrorsWithoutExhausting(t *testing.T) {
	boom := errors.New("boom")
	step := 0
	pull := WrapSource(Func(func() (record.Value, error) {
		step++
		switch step {
		case 1:
			return record.Null(), boom
		case 2:
			return record.Tuple(step), nil
		}
		return record.Null(), ErrExhausted
	}))

	_, err := pull()
	assert.ErrorIs(t, err, boom)

	v, err := pull()
	require.NoError(t, err)
	assert.Equal(t, record.Tuple(2), v)

	v, err = pull()
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestFromSeq(t *testing.T) {
	stopped := false
	var seq iter.Seq[record.Value] = func(yield func(record.Value) bool) {
		defer func() { stopped = true }()
		for _, v := range scalars("a", nil, "b") {
			if !yield(v) {
				return
			}
		}
	}

	pull := WrapSource(FromSeq(seq))

	v, err := pull()
	require.NoError(t, err)
	assert.Equal(t, record.Other("a"), v)

	v, err = pull()
	require.NoError(t, err)
	assert.Equal(t, record.Other("b"), v)

	v, err = pull()
	require.NoError(t, err)
	assert.True(t, v.IsNull())
	assert.True(t, stopped)
}

func TestFromSeq_StopEarly(t *testing.T) {
	stopped := false
	seq := func(yield func(record.Value) bool) {
		defer func() { stopped = true }()
		for i := 0; ; i++ {
			if !yield(record.Tuple(i)) {
				return
			}
		}
	}

	it := FromSeq(seq)
	_, err := it.Next()
	require.NoError(t, err)

	s, ok := it.(interface{ Stop() })
	require.True(t, ok)
	s.Stop()
	s.Stop()
	assert.True(t, stopped)

	_, err = it.Next()
	assert.ErrorIs(t, err, ErrExhausted)
}
