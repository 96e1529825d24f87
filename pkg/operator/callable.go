// Package operator defines user callables as the host invokes them and the
// helpers that adapt their results, bind their input ports and carry their
// output-attribute metadata.
package operator

import (
	"context"

	"github.com/wehubfusion/Daedalus/pkg/record"
)

// Args is the calling convention of a callable: the tuple fields the host
// passes by position plus any named arguments.
type Args struct {
	Positional []any
	Keyed      map[string]any
}

// PositionalArgs builds Args from positional values only.
func PositionalArgs(values ...any) Args {
	return Args{Positional: values}
}

// Walk calls visit on every positional and keyed argument value.
func (a Args) Walk(visit func(any)) {
	for _, v := range a.Positional {
		visit(v)
	}
	for _, v := range a.Keyed {
		visit(v)
	}
}

// Func is the body of a callable.
type Func func(ctx context.Context, args Args) (record.Value, error)

// ShutdownHook releases resources held by a callable. It is invoked once, by
// the host, when the operator shuts down.
type ShutdownHook func(ctx context.Context) error

// Callable is a user-supplied operator function together with its optional
// capabilities. A nil Shutdown means the callable has no shutdown hook.
type Callable struct {
	// Name identifies the callable in logs and spans
	Name string
	// Fn is invoked once per tuple
	Fn Func
	// Shutdown is optional
	Shutdown ShutdownHook

	outputAttrs []string
}

// New returns a Callable for fn with no shutdown hook.
func New(name string, fn Func) Callable {
	return Callable{Name: name, Fn: fn}
}

// IsZero reports whether c has no function.
func (c Callable) IsZero() bool {
	return c.Fn == nil
}

// HasShutdown reports whether c carries a shutdown hook.
func (c Callable) HasShutdown() bool {
	return c.Shutdown != nil
}

// Invoke calls the function with args.
func (c Callable) Invoke(ctx context.Context, args Args) (record.Value, error) {
	return c.Fn(ctx, args)
}

// CallShutdown runs the shutdown hook if there is one.
func (c Callable) CallShutdown(ctx context.Context) error {
	if c.Shutdown == nil {
		return nil
	}
	return c.Shutdown(ctx)
}

// OutputAttributes returns the attribute list attached with
// AttachOutputAttributes, or nil.
func (c Callable) OutputAttributes() []string {
	if c.outputAttrs == nil {
		return nil
	}
	out := make([]string, len(c.outputAttrs))
	copy(out, c.outputAttrs)
	return out
}
