// Package runner hosts a user callable between a source and a sink.
// It pulls records one at a time, invokes the output-adapted callable on each
// and submits every positional record of the result to the sink, releasing
// buffer-backed values once they have been emitted.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	internaltracing "github.com/wehubfusion/Daedalus/internal/tracing"
	"github.com/wehubfusion/Daedalus/pkg/buffer"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/operator"
	"github.com/wehubfusion/Daedalus/pkg/record"
	"github.com/wehubfusion/Daedalus/pkg/sink"
	"github.com/wehubfusion/Daedalus/pkg/source"
)

const tracerName = "daedalus/runner"

// Options configures a Runner. The zero value is usable.
type Options struct {
	Logger         *zap.Logger
	RunnerID       string
	Tracing        *TracingConfig
	TracerProvider trace.TracerProvider
}

// DefaultOptions returns options with no logger, a generated runner ID and
// tracing disabled.
func DefaultOptions() Options {
	return Options{}
}

// WithLogger sets the logger
func (o Options) WithLogger(logger *zap.Logger) Options {
	o.Logger = logger
	return o
}

// WithRunnerID sets the runner ID attached to logs, spans and sink headers
func (o Options) WithRunnerID(id string) Options {
	o.RunnerID = id
	return o
}

// WithTracing makes the runner set up OTLP export and shut it down on Close
func (o Options) WithTracing(cfg TracingConfig) Options {
	o.Tracing = &cfg
	return o
}

// WithTracerProvider sets the provider spans are created from instead of the
// global one
func (o Options) WithTracerProvider(tp trace.TracerProvider) Options {
	o.TracerProvider = tp
	return o
}

// Stats counts what a runner has processed
type Stats struct {
	// Pulled is the number of records taken from the source
	Pulled int64
	// Emitted is the number of records submitted to the sink
	Emitted int64
	// Skipped is the number of null results and null batch elements
	Skipped int64
}

// Runner drives one callable synchronously from a pull function to a sink.
type Runner struct {
	id     string
	pull   source.Pull
	op     operator.Callable
	sink   sink.Sink
	logger *zap.Logger
	tracer trace.Tracer

	tracingShutdown internaltracing.ShutdownFunc

	pulled  atomic.Int64
	emitted atomic.Int64
	skipped atomic.Int64

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a Runner. A zero op passes every pulled record through
// unchanged; otherwise op is wrapped so its results are normalized against
// attrs. pull and s are required.
func New(pull source.Pull, op operator.Callable, attrs []string, s sink.Sink, opts Options) (*Runner, error) {
	if pull == nil {
		return nil, fmt.Errorf("pull function: %w", sdkerrors.ErrNilCallable)
	}
	if s == nil {
		return nil, fmt.Errorf("sink: %w", sdkerrors.ErrNilCallable)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := opts.RunnerID
	if id == "" {
		id = uuid.NewString()
	}

	if op.IsZero() {
		op = operator.New("identity", passThrough)
	}
	if op.Name == "" {
		op.Name = "operator"
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	r := &Runner{
		id:     id,
		pull:   pull,
		op:     operator.WrapOutput(op, attrs),
		sink:   s,
		logger: logger.With(zap.String("runner_id", id), zap.String("operator", op.Name)),
		tracer: tp.Tracer(tracerName),
	}

	if opts.Tracing != nil {
		shutdown, err := internaltracing.SetupTracing(context.Background(), opts.Tracing.toInternalConfig(), logger)
		if err != nil {
			logger.Warn("Failed to setup tracing, continuing without tracing", zap.Error(err))
		} else {
			r.tracingShutdown = shutdown
			if opts.TracerProvider == nil {
				r.tracer = otel.Tracer(tracerName)
			}
			logger.Info("Tracing setup complete",
				zap.String("service", opts.Tracing.ServiceName),
				zap.String("endpoint", opts.Tracing.OTLPEndpoint))
		}
	}

	return r, nil
}

// passThrough returns its single argument as the result
func passThrough(_ context.Context, args operator.Args) (record.Value, error) {
	if len(args.Positional) != 1 {
		return record.Null(), fmt.Errorf("identity expects one argument, got %d", len(args.Positional))
	}
	return record.FromElement(args.Positional[0]), nil
}

// ID returns the runner ID
func (r *Runner) ID() string {
	return r.id
}

// Stats returns the counters accumulated so far
func (r *Runner) Stats() Stats {
	return Stats{
		Pulled:  r.pulled.Load(),
		Emitted: r.emitted.Load(),
		Skipped: r.skipped.Load(),
	}
}

// Run processes records until the source is exhausted, ctx is done or a
// step fails. Source, operator and sink failures stop the run and are
// returned as *errors.Error carrying CodeSource, CodeOperator or CodeSink.
func (r *Runner) Run(ctx context.Context) error {
	if r.closed.Load() {
		return sdkerrors.ErrClosed
	}

	ctx, span := r.tracer.Start(ctx, "runner.Run",
		trace.WithAttributes(
			attribute.String("runner.id", r.id),
			attribute.String("operator.name", r.op.Name),
		))
	defer span.End()

	start := time.Now()
	r.logger.Info("Runner started")

	for {
		if err := ctx.Err(); err != nil {
			r.logger.Info("Runner stopped due to context cancellation", r.statFields()...)
			span.SetStatus(codes.Error, "context cancelled")
			return err
		}

		done, err := r.step(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.logger.Error("Runner failed", append(r.statFields(), zap.Error(err))...)
			return err
		}
		if done {
			break
		}
	}

	stats := r.Stats()
	span.SetAttributes(
		attribute.Int64("records.pulled", stats.Pulled),
		attribute.Int64("records.emitted", stats.Emitted),
		attribute.Int64("records.skipped", stats.Skipped),
	)
	span.SetStatus(codes.Ok, "source exhausted")
	r.logger.Info("Runner completed",
		append(r.statFields(), zap.Duration("duration", time.Since(start)))...)
	return nil
}

// step pulls one record and processes it. done is true once the source is
// exhausted.
func (r *Runner) step(ctx context.Context) (done bool, err error) {
	pulled, err := r.pull()
	if err != nil {
		return false, sdkerrors.NewError(sdkerrors.CodeSource, "pull", err)
	}
	if pulled.IsNull() {
		return true, nil
	}
	r.pulled.Add(1)

	ctx, span := r.tracer.Start(ctx, "runner.process",
		trace.WithAttributes(attribute.String("record.kind", pulled.Kind().String())))
	defer span.End()

	result, err := r.invoke(ctx, pulled)
	if err != nil {
		buffer.Release(pulled)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, sdkerrors.NewError(sdkerrors.CodeOperator, "invoke "+r.op.Name, err)
	}

	emitErr := r.emit(ctx, result)
	// results may forward buffers of the pulled record
	buffer.ReleaseDistinct(pulled, result)
	if emitErr != nil {
		span.RecordError(emitErr)
		span.SetStatus(codes.Error, emitErr.Error())
		return false, emitErr
	}

	span.SetAttributes(attribute.String("result.kind", result.Kind().String()))
	span.SetStatus(codes.Ok, "")
	return false, nil
}

func (r *Runner) invoke(ctx context.Context, pulled record.Value) (record.Value, error) {
	ctx, span := r.tracer.Start(ctx, "operator.Invoke",
		trace.WithAttributes(attribute.String("operator.name", r.op.Name)))
	defer span.End()

	start := time.Now()
	result, err := r.op.Invoke(ctx, operator.PositionalArgs(argument(pulled)))
	span.SetAttributes(attribute.Int64("processing.duration_ms", time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return record.Null(), err
	}
	return result, nil
}

// argument converts a pulled record to the value handed to the callable
func argument(v record.Value) any {
	switch v.Kind() {
	case record.KindPositional:
		p, _ := v.Positional()
		return p
	case record.KindKeyed:
		k, _ := v.Keyed()
		return k
	case record.KindOther:
		x, _ := v.Other()
		return x
	}
	return v
}

// emit submits every positional record of result to the sink
func (r *Runner) emit(ctx context.Context, result record.Value) error {
	_, span := r.tracer.Start(ctx, "sink.Emit")
	defer span.End()

	switch result.Kind() {
	case record.KindNull:
		r.skipped.Add(1)
		return nil
	case record.KindPositional:
		p, _ := result.Positional()
		return r.emitRecord(ctx, p)
	case record.KindBatch:
		elems, _ := result.Batch()
		span.SetAttributes(attribute.Int("batch.size", len(elems)))
		for i, e := range elems {
			switch e.Kind() {
			case record.KindNull:
				r.skipped.Add(1)
			case record.KindPositional:
				p, _ := e.Positional()
				if err := r.emitRecord(ctx, p); err != nil {
					return err
				}
			default:
				return sdkerrors.NewError(sdkerrors.CodeOperator,
					fmt.Sprintf("batch element %d of %s", i, r.op.Name),
					fmt.Errorf("%w: %s", sdkerrors.ErrUnsupportedShape, e.Kind()))
			}
		}
		return nil
	}
	return sdkerrors.NewError(sdkerrors.CodeOperator, "result of "+r.op.Name,
		fmt.Errorf("%w: %s", sdkerrors.ErrUnsupportedShape, result.Kind()))
}

func (r *Runner) emitRecord(ctx context.Context, rec record.Positional) error {
	if err := r.sink.Emit(ctx, rec); err != nil {
		return sdkerrors.NewError(sdkerrors.CodeSink, "emit", err)
	}
	r.emitted.Add(1)
	r.logger.Debug("Record emitted", zap.Int("fields", len(rec)))
	return nil
}

func (r *Runner) statFields() []zap.Field {
	stats := r.Stats()
	return []zap.Field{
		zap.Int64("pulled", stats.Pulled),
		zap.Int64("emitted", stats.Emitted),
		zap.Int64("skipped", stats.Skipped),
	}
}

// Close runs the operator's shutdown hook if it has one, closes the sink and
// shuts down tracing if the runner set it up. Later calls return the first
// result.
func (r *Runner) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		var errs []error

		if r.op.HasShutdown() {
			if err := r.op.CallShutdown(ctx); err != nil {
				r.logger.Error("Operator shutdown failed", zap.Error(err))
				errs = append(errs, sdkerrors.NewError(sdkerrors.CodeOperator, "shutdown "+r.op.Name, err))
			}
		}

		if err := r.sink.Close(ctx); err != nil {
			r.logger.Error("Error closing sink", zap.Error(err))
			errs = append(errs, sdkerrors.NewError(sdkerrors.CodeSink, "close", err))
		}

		if r.tracingShutdown != nil {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := r.tracingShutdown(shutdownCtx); err != nil {
				r.logger.Error("Error shutting down tracing", zap.Error(err))
				errs = append(errs, err)
			} else {
				r.logger.Info("Tracing shutdown complete")
			}
		}

		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}
