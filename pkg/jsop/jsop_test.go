package jsop

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/operator"
	"github.com/wehubfusion/Daedalus/pkg/record"
	"github.com/wehubfusion/Daedalus/pkg/source"
)

func newTestOperator(t *testing.T, script string) *Operator {
	t.Helper()
	op, err := NewOperator(Config{Script: script}, nil)
	require.NoError(t, err)
	return op
}

func requireJSError(t *testing.T, err error, want ErrorType) *JSError {
	t.Helper()
	require.Error(t, err)
	jsErr, ok := IsJSError(err)
	require.True(t, ok, "expected *JSError, got %T: %v", err, err)
	assert.Equal(t, want, jsErr.Type, jsErr.Error())
	return jsErr
}

func TestConfig_DefaultsAndValidate(t *testing.T) {
	cfg := Config{Script: "1"}
	cfg.ApplyDefaults()

	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, SecurityLevelStandard, cfg.SecurityLevel)
	assert.Equal(t, DefaultMaxStackDepth, cfg.MaxStackDepth)
	assert.Equal(t, "js", cfg.Name)
	require.NoError(t, cfg.Validate())

	bad := []Config{
		{},
		{Script: "1", Timeout: -1, SecurityLevel: SecurityLevelStandard, MaxStackDepth: 1},
		{Script: "1", Timeout: time.Second, SecurityLevel: "open", MaxStackDepth: 1},
		{Script: "1", Timeout: time.Second, SecurityLevel: SecurityLevelStrict, MaxStackDepth: -1},
	}
	for _, c := range bad {
		assert.ErrorIs(t, c.Validate(), sdkerrors.ErrInvalidConfig)
	}
}

func TestConfig_UnmarshalJSON(t *testing.T) {
	var fromString Config
	require.NoError(t, json.Unmarshal([]byte(`{"script":"1","timeout":"250ms","security_level":"strict"}`), &fromString))
	assert.Equal(t, 250*time.Millisecond, fromString.Timeout)
	assert.Equal(t, SecurityLevelStrict, fromString.SecurityLevel)

	var fromNumber Config
	require.NoError(t, json.Unmarshal([]byte(`{"script":"1","timeout":1500}`), &fromNumber))
	assert.Equal(t, 1500*time.Millisecond, fromNumber.Timeout)

	var invalid Config
	assert.Error(t, json.Unmarshal([]byte(`{"script":"1","timeout":"soon"}`), &invalid))
}

func TestNewOperator_InvalidConfig(t *testing.T) {
	_, err := NewOperator(Config{}, nil)
	assert.ErrorIs(t, err, sdkerrors.ErrInvalidConfig)
}

func TestOperator_FunctionReturningKeyedRecord(t *testing.T) {
	op := newTestOperator(t, `(function (x, y) { return {sum: x + y, label: "s"}; })`)

	got, err := op.Invoke(context.Background(), operator.PositionalArgs(1, 2))
	require.NoError(t, err)

	assert.Equal(t, record.FromKeyed(record.Keyed{"sum": int64(3), "label": "s"}), got)
	assert.False(t, op.HasShutdown())
	assert.False(t, op.Callable().HasShutdown())
}

func TestOperator_KeyedArgumentsTrail(t *testing.T) {
	op := newTestOperator(t, `(function (x, opts) { return [[x, opts.scale]]; })`)

	got, err := op.Invoke(context.Background(), operator.Args{
		Positional: []any{2},
		Keyed:      map[string]any{"scale": 10},
	})
	require.NoError(t, err)

	assert.Equal(t, record.Batch(record.Tuple(int64(2), int64(10))), got)
}

func TestOperator_RecordArguments(t *testing.T) {
	op := newTestOperator(t, `(function (rec) { return {first: rec[0], n: rec.length}; })`)

	got, err := op.Invoke(context.Background(), operator.PositionalArgs(record.Tuple("a", "b")))
	require.NoError(t, err)

	assert.Equal(t, record.FromKeyed(record.Keyed{"first": "a", "n": int64(2)}), got)
}

func TestOperator_NullResult(t *testing.T) {
	op := newTestOperator(t, `(function () { return undefined; })`)

	got, err := op.Invoke(context.Background(), operator.Args{})
	require.NoError(t, err)
	assert.True(t, got.IsNull())
}

func TestOperator_ObjectWithShutdown(t *testing.T) {
	op := newTestOperator(t, `(function () {
		var calls = 0;
		return {
			process: function (x) { calls++; return [[calls, x]]; },
			shutdown: function () {
				if (calls !== 2) { throw new Error("expected 2 calls, got " + calls); }
			}
		};
	})()`)

	c := op.Callable()
	require.True(t, c.HasShutdown())

	for i := 1; i <= 2; i++ {
		got, err := c.Invoke(context.Background(), operator.PositionalArgs("v"))
		require.NoError(t, err)
		assert.Equal(t, record.Batch(record.Tuple(int64(i), "v")), got)
	}

	require.NoError(t, c.CallShutdown(context.Background()))
	require.NoError(t, c.CallShutdown(context.Background()), "shutdown runs once")
}

func TestOperator_MethodsSeeTheirObject(t *testing.T) {
	op := newTestOperator(t, `({
		total: 0,
		process: function (x) { this.total += x; return {total: this.total}; },
		shutdown: function () {
			if (this.total !== 5) { throw new Error("total " + this.total); }
		}
	})`)

	for _, x := range []int{2, 3} {
		_, err := op.Invoke(context.Background(), operator.PositionalArgs(x))
		require.NoError(t, err)
	}
	require.NoError(t, op.Shutdown(context.Background()))
}

func TestOperator_ShutdownErrorIsReported(t *testing.T) {
	op := newTestOperator(t, `({
		process: function () { return null; },
		shutdown: function () { throw new Error("cannot close"); }
	})`)

	err := op.Shutdown(context.Background())
	jsErr := requireJSError(t, err, ErrorTypeRuntime)
	assert.Contains(t, jsErr.Message, "cannot close")
}

func TestOperator_WrappedOutput(t *testing.T) {
	op := newTestOperator(t, `(function (x) { return {b: x}; })`)

	wrapped := operator.WrapOutput(op.Callable(), []string{"a", "b"})
	got, err := wrapped.Invoke(context.Background(), operator.PositionalArgs("v"))
	require.NoError(t, err)

	assert.Equal(t, record.Tuple(nil, "v"), got)
}

func TestOperator_RuntimeError(t *testing.T) {
	op := newTestOperator(t, `(function () { throw new Error("boom"); })`)

	_, err := op.Invoke(context.Background(), operator.Args{})

	jsErr := requireJSError(t, err, ErrorTypeRuntime)
	assert.Contains(t, jsErr.Message, "boom")
}

func TestNewOperator_ScriptErrors(t *testing.T) {
	_, err := NewOperator(Config{Script: "function ("}, nil)
	requireJSError(t, err, ErrorTypeSyntax)

	_, err = NewOperator(Config{Script: "42"}, nil)
	requireJSError(t, err, ErrorTypeShape)

	_, err = NewOperator(Config{Script: "({})"}, nil)
	requireJSError(t, err, ErrorTypeShape)

	_, err = NewOperator(Config{Script: `({process: function () {}, shutdown: 1})`}, nil)
	requireJSError(t, err, ErrorTypeShape)
}

func TestOperator_TimeoutInterruptsAndRecovers(t *testing.T) {
	op, err := NewOperator(Config{
		Script:  `(function (loop) { if (loop) { while (true) {} } return [[1]]; })`,
		Timeout: 100 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	_, err = op.Invoke(context.Background(), operator.PositionalArgs(true))
	requireJSError(t, err, ErrorTypeTimeout)
	assert.True(t, sdkerrors.IsTimeout(err))

	got, err := op.Invoke(context.Background(), operator.PositionalArgs(false))
	require.NoError(t, err)
	assert.Equal(t, record.Batch(record.Tuple(int64(1))), got)
}

func TestOperator_ContextCancellation(t *testing.T) {
	op := newTestOperator(t, `(function () { while (true) {} })`)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := op.Invoke(ctx, operator.Args{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestOperator_StackDepth(t *testing.T) {
	op, err := NewOperator(Config{
		Script:        `(function f(n) { return f(n + 1); })`,
		MaxStackDepth: 50,
	}, nil)
	require.NoError(t, err)

	_, err = op.Invoke(context.Background(), operator.PositionalArgs(0))
	requireJSError(t, err, ErrorTypeRuntime)
}

func TestSandbox_RemovesHostGlobals(t *testing.T) {
	op := newTestOperator(t, `(function () { return [[typeof require, typeof process, typeof module]]; })`)

	got, err := op.Invoke(context.Background(), operator.Args{})
	require.NoError(t, err)
	assert.Equal(t, record.Batch(record.Tuple("undefined", "undefined", "undefined")), got)
}

func TestSandbox_StrictForbidsEval(t *testing.T) {
	op, err := NewOperator(Config{
		Script:        `(function () { return eval("1 + 1"); })`,
		SecurityLevel: SecurityLevelStrict,
	}, nil)
	require.NoError(t, err)

	_, err = op.Invoke(context.Background(), operator.Args{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestSandbox_FreezesBuiltins(t *testing.T) {
	script := `(function () { Array.prototype.injected = 1; return [[Array.prototype.injected === undefined]]; })`

	standard := newTestOperator(t, script)
	got, err := standard.Invoke(context.Background(), operator.Args{})
	require.NoError(t, err)
	assert.Equal(t, record.Batch(record.Tuple(true)), got)

	permissive, err := NewOperator(Config{Script: script, SecurityLevel: SecurityLevelPermissive}, nil)
	require.NoError(t, err)
	got, err = permissive.Invoke(context.Background(), operator.Args{})
	require.NoError(t, err)
	assert.Equal(t, record.Batch(record.Tuple(false)), got)
}

func TestSandbox_ConsoleWritesToLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	op, err := NewOperator(Config{
		Name:   "greeter",
		Script: `(function () { console.log("hello"); console.warn("careful"); return null; })`,
	}, zap.New(core))
	require.NoError(t, err)

	_, err = op.Invoke(context.Background(), operator.Args{})
	require.NoError(t, err)

	require.Equal(t, 1, logs.FilterMessage("hello").Len())
	warn := logs.FilterMessage("careful").All()
	require.Len(t, warn, 1)
	assert.Equal(t, zap.WarnLevel, warn[0].Level)
	assert.Equal(t, "greeter", warn[0].ContextMap()["script"])
}

func pullAll(t *testing.T, it source.Iterator) []record.Value {
	t.Helper()
	pull := source.WrapSource(it)
	var out []record.Value
	for i := 0; i < 100; i++ {
		v, err := pull()
		require.NoError(t, err)
		if v.IsNull() {
			return out
		}
		out = append(out, v)
	}
	t.Fatal("source did not end")
	return nil
}

func TestSource_Array(t *testing.T) {
	s, err := NewSource(Config{Script: `[[1, "a"], null, {id: 2}, 3]`}, nil)
	require.NoError(t, err)

	assert.Equal(t, []record.Value{
		record.Tuple(int64(1), "a"),
		record.FromKeyed(record.Keyed{"id": int64(2)}),
		record.Other(int64(3)),
	}, pullAll(t, s))

	_, err = s.Next()
	assert.ErrorIs(t, err, source.ErrExhausted)
}

func TestSource_GeneratorFunction(t *testing.T) {
	s, err := NewSource(Config{Script: `(function* () { yield [1]; yield null; yield undefined; yield [2]; })`}, nil)
	require.NoError(t, err)

	assert.Equal(t, []record.Value{record.Tuple(int64(1)), record.Tuple(int64(2))}, pullAll(t, s))
}

func TestSource_IteratorObject(t *testing.T) {
	s, err := NewSource(Config{Script: `(function () {
		var i = 0;
		return {
			next: function () {
				i++;
				return i <= 2 ? {value: [i], done: false} : {done: true};
			}
		};
	})()`}, nil)
	require.NoError(t, err)

	assert.Equal(t, []record.Value{record.Tuple(int64(1)), record.Tuple(int64(2))}, pullAll(t, s))
}

func TestSource_ErrorsPropagate(t *testing.T) {
	s, err := NewSource(Config{Script: `(function* () { yield [1]; throw new Error("broken"); })`}, nil)
	require.NoError(t, err)

	pull := source.WrapSource(s)
	v, err := pull()
	require.NoError(t, err)
	assert.Equal(t, record.Tuple(int64(1)), v)

	_, err = pull()
	jsErr := requireJSError(t, err, ErrorTypeRuntime)
	assert.Contains(t, jsErr.Message, "broken")
}

func TestNewSource_InvalidShapes(t *testing.T) {
	for _, script := range []string{"42", "({})", `(function () { return "text"; })`} {
		_, err := NewSource(Config{Script: script}, nil)
		requireJSError(t, err, ErrorTypeShape)
	}
}

func TestJSError_Format(t *testing.T) {
	err := &JSError{
		Type:    ErrorTypeRuntime,
		Message: "boom",
		Line:    3,
		Column:  7,
		StackTrace: []StackFrame{
			{FunctionName: "f", FileName: "op.js", Line: 3, Column: 7},
			{Line: 1, Column: 1},
		},
	}

	s := err.Error()
	assert.Contains(t, s, "[runtime_error] boom at line 3, column 7")
	assert.Contains(t, s, "at f (op.js:3:7)")
	assert.Contains(t, s, "at <anonymous> (line 1:1)")
}

func TestParseStackTrace(t *testing.T) {
	frames := parseStackTrace("Error: boom\n\tat f (op.js:3:9(4))\n\tat native\n\tat op.js:10:2(7)\n")

	require.Len(t, frames, 3)
	assert.Equal(t, StackFrame{FunctionName: "f", FileName: "op.js", Line: 3, Column: 9}, frames[0])
	assert.Equal(t, StackFrame{}, frames[1])
	assert.Equal(t, StackFrame{FileName: "op.js", Line: 10, Column: 2}, frames[2])
}
