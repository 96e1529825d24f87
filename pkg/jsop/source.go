package jsop

import (
	"context"
	"strconv"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/record"
	"github.com/wehubfusion/Daedalus/pkg/source"
)

// Source iterates the values produced by a JavaScript source script
type Source struct {
	engine *engine

	// array sources
	array  *goja.Object
	length int64
	pos    int64

	// iterator sources
	iterator *goja.Object
	next     goja.Callable

	done bool
}

var _ source.Iterator = (*Source)(nil)

// NewSource evaluates cfg.Script. The completion value must be an array, an
// object with a next method, or a function returning one of those (a
// generator function qualifies). A function is called once.
func NewSource(cfg Config, logger *zap.Logger) (*Source, error) {
	e, completion, err := newEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Source{engine: e}

	if fn, ok := goja.AssertFunction(completion); ok {
		err := e.run(context.Background(), func() error {
			v, err := fn(goja.Undefined())
			completion = v
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	obj, ok := completion.(*goja.Object)
	if !ok {
		return nil, newShapeError("source script must evaluate to an array, an iterator or a generator function, got %s", describe(completion))
	}

	if obj.ClassName() == "Array" {
		s.array = obj
		s.length = obj.Get("length").ToInteger()
		return s, nil
	}

	next, ok := goja.AssertFunction(obj.Get("next"))
	if !ok {
		return nil, newShapeError("source object has no next method")
	}
	s.iterator = obj
	s.next = next
	return s, nil
}

// Next returns the next value of the source or source.ErrExhausted. A
// JavaScript array item is a positional record, an object is a keyed record
// and null or undefined is the null value.
func (s *Source) Next() (record.Value, error) {
	if s.done {
		return record.Null(), source.ErrExhausted
	}

	var (
		item      any
		exhausted bool
	)
	err := s.engine.run(context.Background(), func() error {
		if s.array != nil {
			if s.pos >= s.length {
				exhausted = true
				return nil
			}
			item = export(s.array.Get(strconv.FormatInt(s.pos, 10)))
			s.pos++
			return nil
		}

		res, err := s.next(s.iterator)
		if err != nil {
			return err
		}
		resObj, ok := res.(*goja.Object)
		if !ok {
			return newShapeError("iterator result is not an object")
		}
		if d := resObj.Get("done"); d != nil && d.ToBoolean() {
			exhausted = true
			return nil
		}
		item = export(resObj.Get("value"))
		return nil
	})
	if err != nil {
		return record.Null(), err
	}
	if exhausted {
		s.done = true
		return record.Null(), source.ErrExhausted
	}
	return record.FromElement(item), nil
}
