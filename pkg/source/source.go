// Package source turns user iterators into the pull function the host calls
// for every tuple it submits.
package source

import (
	"errors"
	"iter"

	"github.com/wehubfusion/Daedalus/pkg/record"
)

// ErrExhausted is returned by an Iterator that has no more values.
var ErrExhausted = errors.New("source exhausted")

// Iterator yields values one at a time. Next returns ErrExhausted (or an
// error wrapping it) once the sequence has ended.
type Iterator interface {
	Next() (record.Value, error)
}

// Pull returns the next non-null value of a source, or record.Null() once the
// source is exhausted.
type Pull func() (record.Value, error)

// adapter holds the terminal flag for one wrapped iterator
type adapter struct {
	it        Iterator
	exhausted bool
}

// WrapSource adapts it into a Pull. Null values produced by it are skipped.
// When it reports ErrExhausted the returned Pull yields record.Null() on that
// call and on every later call without touching it again. Other errors are
// returned unchanged and the source stays active.
func WrapSource(it Iterator) Pull {
	a := &adapter{it: it}
	return a.next
}

func (a *adapter) next() (record.Value, error) {
	if a.exhausted {
		return record.Null(), nil
	}
	for {
		v, err := a.it.Next()
		if err != nil {
			if errors.Is(err, ErrExhausted) {
				a.exhausted = true
				return record.Null(), nil
			}
			return record.Null(), err
		}
		if !v.IsNull() {
			return v, nil
		}
	}
}

// Func adapts a plain function to Iterator.
type Func func() (record.Value, error)

// Next calls f.
func (f Func) Next() (record.Value, error) {
	return f()
}

// sliceIterator walks a fixed list of values
type sliceIterator struct {
	values []record.Value
	pos    int
}

// FromValues returns an Iterator over values, in order.
func FromValues(values ...record.Value) Iterator {
	return &sliceIterator{values: values}
}

func (s *sliceIterator) Next() (record.Value, error) {
	if s.pos >= len(s.values) {
		return record.Null(), ErrExhausted
	}
	v := s.values[s.pos]
	s.pos++
	return v, nil
}

// seqIterator drives a push-style sequence through iter.Pull
type seqIterator struct {
	next func() (record.Value, bool)
	stop func()
}

// FromSeq returns an Iterator over seq. The underlying pull is stopped as
// soon as seq ends.
func FromSeq(seq iter.Seq[record.Value]) Iterator {
	next, stop := iter.Pull(seq)
	return &seqIterator{next: next, stop: stop}
}

func (s *seqIterator) Next() (record.Value, error) {
	if s.next == nil {
		return record.Null(), ErrExhausted
	}
	v, ok := s.next()
	if !ok {
		s.stop()
		s.next = nil
		return record.Null(), ErrExhausted
	}
	return v, nil
}

// Stop releases the sequence early. It is safe to call more than once.
func (s *seqIterator) Stop() {
	if s.next == nil {
		return
	}
	s.stop()
	s.next = nil
}
