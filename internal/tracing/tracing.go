// Package tracing sets up OpenTelemetry span export for Daedalus runners
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/config"
)

// ShutdownFunc flushes pending spans and stops the exporter
type ShutdownFunc func(context.Context) error

// TracingConfig holds configuration for tracing setup
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // host:port only, the exporter adds the path
	SampleRatio    float64
}

// DefaultConfig returns a development tracing configuration
func DefaultConfig(serviceName string) TracingConfig {
	return TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "127.0.0.1:4318",
		SampleRatio:    1.0,
	}
}

// FromConfig derives the tracing settings from the runtime configuration
func FromConfig(cfg *config.Config) TracingConfig {
	tc := DefaultConfig(cfg.ServiceName)
	if cfg.OTLPEndpoint != "" {
		tc.OTLPEndpoint = cfg.OTLPEndpoint
	}
	tc.SampleRatio = cfg.TraceSampleRatio
	return tc
}

// SetupTracing installs a global tracer provider exporting over OTLP HTTP.
// The returned function must be called on exit to flush spans.
func SetupTracing(ctx context.Context, cfg TracingConfig, logger *zap.Logger) (ShutdownFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("tracing: service name is required")
	}

	logger.Info("Setting up tracing",
		zap.String("service_name", cfg.ServiceName),
		zap.String("otlp_endpoint", cfg.OTLPEndpoint),
		zap.Float64("sample_ratio", cfg.SampleRatio))

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Error("Failed to create OTLP exporter", zap.Error(err))
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		logger.Error("Failed to create resource", zap.Error(err))
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// Shutdown runs shutdown with a bounded timeout and logs the outcome
func Shutdown(shutdown ShutdownFunc, logger *zap.Logger) error {
	if shutdown == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown tracing", zap.Error(err))
		return err
	}
	logger.Info("Tracing shutdown completed")
	return nil
}
