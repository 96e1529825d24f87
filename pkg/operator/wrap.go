package operator

import (
	"context"

	"github.com/wehubfusion/Daedalus/pkg/record"
)

// WrapOutput returns a callable with the same calling convention as c whose
// result is c's result normalized against attrs. Keyed records become
// positional records of len(attrs) fields, batches are normalized element by
// element and every other shape is returned unchanged.
//
// Errors from c are returned as is and its result is discarded. The wrapper
// has a shutdown hook only when c has one, and it calls c's hook. Wrapping a
// zero Callable yields a zero Callable.
func WrapOutput(c Callable, attrs []string) Callable {
	n := record.NewNormalizer(attrs)
	fn := c.Fn

	wrapped := Callable{
		Name:        c.Name,
		outputAttrs: c.outputAttrs,
	}
	if fn != nil {
		wrapped.Fn = func(ctx context.Context, args Args) (record.Value, error) {
			v, err := fn(ctx, args)
			if err != nil {
				return record.Null(), err
			}
			return n.NormalizeValue(v), nil
		}
	}
	if c.Shutdown != nil {
		hook := c.Shutdown
		wrapped.Shutdown = func(ctx context.Context) error {
			return hook(ctx)
		}
	}
	return wrapped
}
