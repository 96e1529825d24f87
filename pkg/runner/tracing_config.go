package runner

import (
	internaltracing "github.com/wehubfusion/Daedalus/internal/tracing"
	"github.com/wehubfusion/Daedalus/pkg/config"
)

// TracingConfig is the public tracing configuration accepted by Options.
// It mirrors the internal tracing configuration but keeps the implementation private.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	SampleRatio    float64
}

// DefaultTracingConfig returns a development-friendly tracing configuration.
func DefaultTracingConfig(serviceName string) TracingConfig {
	return fromInternalConfig(internaltracing.DefaultConfig(serviceName))
}

// TracingConfigFrom derives the tracing settings from the runtime configuration.
func TracingConfigFrom(cfg *config.Config) TracingConfig {
	return fromInternalConfig(internaltracing.FromConfig(cfg))
}

func (c TracingConfig) toInternalConfig() internaltracing.TracingConfig {
	return internaltracing.TracingConfig{
		ServiceName:    c.ServiceName,
		ServiceVersion: c.ServiceVersion,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTLPEndpoint,
		SampleRatio:    c.SampleRatio,
	}
}

func fromInternalConfig(cfg internaltracing.TracingConfig) TracingConfig {
	return TracingConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRatio:    cfg.SampleRatio,
	}
}
