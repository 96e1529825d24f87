package jsop

import (
	"context"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/operator"
	"github.com/wehubfusion/Daedalus/pkg/record"
)

// Operator is a JavaScript operator function with its optional shutdown hook
type Operator struct {
	engine   *engine
	receiver goja.Value
	process  goja.Callable
	shutdown goja.Callable

	closeOnce sync.Once
	closeErr  error
}

// NewOperator evaluates cfg.Script and binds the operator it evaluates to
func NewOperator(cfg Config, logger *zap.Logger) (*Operator, error) {
	e, completion, err := newEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	op := &Operator{engine: e, receiver: goja.Undefined()}
	if fn, ok := goja.AssertFunction(completion); ok {
		op.process = fn
		return op, nil
	}

	obj, ok := completion.(*goja.Object)
	if !ok {
		return nil, newShapeError("operator script must evaluate to a function or an object with a process function, got %s", describe(completion))
	}

	process, ok := goja.AssertFunction(obj.Get("process"))
	if !ok {
		return nil, newShapeError("operator object has no process function")
	}
	op.process = process
	op.receiver = obj

	if sd := obj.Get("shutdown"); sd != nil && !goja.IsUndefined(sd) && !goja.IsNull(sd) {
		shutdown, ok := goja.AssertFunction(sd)
		if !ok {
			return nil, newShapeError("operator shutdown is not a function")
		}
		op.shutdown = shutdown
	}
	return op, nil
}

// HasShutdown reports whether the script provided a shutdown function
func (o *Operator) HasShutdown() bool {
	return o.shutdown != nil
}

// Invoke calls the script with the positional arguments followed, when
// present, by the keyed arguments as one trailing object.
func (o *Operator) Invoke(ctx context.Context, args operator.Args) (record.Value, error) {
	var result any
	err := o.engine.run(ctx, func() error {
		jsArgs := make([]goja.Value, 0, len(args.Positional)+1)
		for _, a := range args.Positional {
			jsArgs = append(jsArgs, o.engine.toJS(a))
		}
		if len(args.Keyed) > 0 {
			jsArgs = append(jsArgs, o.engine.toJS(args.Keyed))
		}

		v, err := o.process(o.receiver, jsArgs...)
		if err != nil {
			return err
		}
		result = export(v)
		return nil
	})
	if err != nil {
		return record.Null(), err
	}
	return record.From(result), nil
}

// Shutdown calls the script's shutdown function once. Later calls return the
// first result.
func (o *Operator) Shutdown(ctx context.Context) error {
	if o.shutdown == nil {
		return nil
	}
	o.closeOnce.Do(func() {
		o.closeErr = o.engine.run(ctx, func() error {
			_, err := o.shutdown(o.receiver)
			return err
		})
	})
	return o.closeErr
}

// Callable exposes the operator in the host calling convention. Its
// Shutdown hook is set only when the script defined one.
func (o *Operator) Callable() operator.Callable {
	c := operator.New(o.engine.cfg.Name, o.Invoke)
	if o.shutdown != nil {
		c.Shutdown = o.Shutdown
	}
	return c
}

func describe(v goja.Value) string {
	switch {
	case v == nil, goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	return v.ExportType().String()
}
