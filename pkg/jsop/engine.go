// Package jsop runs user operators and sources written in JavaScript on a
// sandboxed goja runtime.
//
// An operator script evaluates to a function, or to an object with a process
// function and an optional shutdown function:
//
//	({
//	  process: function (x, y) { return {sum: x + y}; },
//	  shutdown: function () { console.log("done"); }
//	})
//
// A source script evaluates to an array, an iterator object or a generator
// function:
//
//	(function* () { yield [1, "a"]; yield {id: 2}; })
//
// Results are converted with record.From, so a JavaScript array returned by
// an operator is a batch and each of its array elements is a positional record.
package jsop

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/record"
)

// engine owns one goja runtime. goja runtimes are not safe for concurrent
// use, so every call into the script holds mu.
type engine struct {
	mu     sync.Mutex
	vm     *goja.Runtime
	cfg    Config
	logger *zap.Logger
}

// newEngine validates cfg, builds a sandboxed runtime and evaluates the script.
// It returns the engine and the script's completion value.
func newEngine(cfg Config, logger *zap.Logger) (*engine, goja.Value, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if err := applySandbox(vm, &cfg, logger); err != nil {
		return nil, nil, fmt.Errorf("failed to apply sandbox: %w", err)
	}

	e := &engine{vm: vm, cfg: cfg, logger: logger}

	var completion goja.Value
	err := e.run(context.Background(), func() error {
		v, err := vm.RunScript(cfg.Name, cfg.Script)
		completion = v
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return e, completion, nil
}

// run executes fn while holding the runtime. The runtime is interrupted when
// ctx is done or the configured timeout expires, whichever comes first.
func (e *engine) run(ctx context.Context, fn func() error) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	timeoutCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	var (
		wg          sync.WaitGroup
		interrupted bool
	)
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-timeoutCtx.Done():
			interrupted = true
			e.vm.Interrupt("execution timeout")
		case <-done:
		}
	}()

	stop := sync.OnceFunc(func() {
		close(done)
		wg.Wait()
		e.vm.ClearInterrupt()
	})
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			err = newInternalError(fmt.Sprintf("panic during execution: %v", r))
		}
	}()

	callErr := fn()
	stop()

	if callErr == nil {
		return nil
	}
	if interrupted && ctx.Err() != nil {
		return fmt.Errorf("script %s interrupted: %w", e.cfg.Name, ctx.Err())
	}
	jsErr := convertError(e.vm, callErr, interrupted, e.cfg.Timeout)
	e.logger.Debug("Script call failed",
		zap.String("script", e.cfg.Name),
		zap.String("error_type", string(jsErr.Type)),
		zap.String("message", jsErr.Message))
	return jsErr
}

// toJS converts a Go argument to a JavaScript value
func (e *engine) toJS(x any) goja.Value {
	switch t := x.(type) {
	case record.Value:
		return e.vm.ToValue(t.Interface())
	case record.Positional:
		return e.vm.ToValue([]any(t))
	case record.Keyed:
		return e.vm.ToValue(map[string]any(t))
	case []byte:
		return e.vm.ToValue(e.vm.NewArrayBuffer(t))
	}
	return e.vm.ToValue(x)
}

// export converts a JavaScript value to a Go value; undefined becomes nil
func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}
