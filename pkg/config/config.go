// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// Environment variable names
const (
	EnvNATSURL              = "DAEDALUS_NATS_URL"
	EnvNATSSubject          = "DAEDALUS_NATS_SUBJECT"
	EnvNATSName             = "DAEDALUS_NATS_NAME"
	EnvServiceName          = "DAEDALUS_SERVICE_NAME"
	EnvOTLPEndpoint         = "DAEDALUS_OTLP_ENDPOINT"
	EnvTraceSampleRatio     = "DAEDALUS_TRACE_SAMPLE_RATIO"
	EnvJSTimeout            = "DAEDALUS_JS_TIMEOUT"
	EnvBlobConnectionString = "DAEDALUS_BLOB_CONNECTION_STRING"
	EnvBlobContainer        = "DAEDALUS_BLOB_CONTAINER"
	EnvFlushEvery           = "DAEDALUS_FLUSH_EVERY"
)

// Defaults
const (
	DefaultNATSSubject      = "daedalus.records"
	DefaultNATSName         = "daedalus"
	DefaultServiceName      = "daedalus"
	DefaultTraceSampleRatio = 1.0
	DefaultJSTimeout        = 5 * time.Second
	DefaultBlobContainer    = "daedalus-records"
	DefaultFlushEvery       = 100
)

// Source indicates where the configuration came from
type Source string

const (
	SourceEnvVar  Source = "environment_variable"
	SourceDefault Source = "default"
)

// Config holds runtime settings. Empty NATSURL, OTLPEndpoint or
// BlobConnectionString disable the NATS sink, tracing and the blob sink.
type Config struct {
	NATSURL              string
	NATSSubject          string
	NATSName             string
	ServiceName          string
	OTLPEndpoint         string
	TraceSampleRatio     float64
	JSTimeout            time.Duration
	BlobConnectionString string
	BlobContainer        string
	FlushEvery           int
	Source               Source
}

// Load reads the configuration with priority: env vars > defaults.
// Unparseable numeric values fall back to their default.
func Load() *Config {
	cfg := &Config{Source: SourceDefault}

	if anySet() {
		cfg.Source = SourceEnvVar
	}

	cfg.NATSURL = getEnv(EnvNATSURL, "")
	cfg.NATSSubject = getEnv(EnvNATSSubject, DefaultNATSSubject)
	cfg.NATSName = getEnv(EnvNATSName, DefaultNATSName)
	cfg.ServiceName = getEnv(EnvServiceName, DefaultServiceName)
	cfg.OTLPEndpoint = getEnv(EnvOTLPEndpoint, "")
	cfg.TraceSampleRatio = getEnvFloat(EnvTraceSampleRatio, DefaultTraceSampleRatio)
	cfg.JSTimeout = getEnvDuration(EnvJSTimeout, DefaultJSTimeout)
	cfg.BlobConnectionString = getEnv(EnvBlobConnectionString, "")
	cfg.BlobContainer = getEnv(EnvBlobContainer, DefaultBlobContainer)
	cfg.FlushEvery = getEnvInt(EnvFlushEvery, DefaultFlushEvery)

	return cfg
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("%s must be within [0, 1], got %v: %w", EnvTraceSampleRatio, c.TraceSampleRatio, sdkerrors.ErrInvalidConfig)
	}
	if c.JSTimeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s: %w", EnvJSTimeout, c.JSTimeout, sdkerrors.ErrInvalidConfig)
	}
	if c.FlushEvery <= 0 {
		return fmt.Errorf("%s must be positive, got %d: %w", EnvFlushEvery, c.FlushEvery, sdkerrors.ErrInvalidConfig)
	}
	if c.NATSURL != "" && strings.TrimSpace(c.NATSSubject) == "" {
		return fmt.Errorf("%s is required when %s is set: %w", EnvNATSSubject, EnvNATSURL, sdkerrors.ErrInvalidConfig)
	}
	if c.BlobConnectionString != "" && c.BlobContainer == "" {
		return fmt.Errorf("%s is required when %s is set: %w", EnvBlobContainer, EnvBlobConnectionString, sdkerrors.ErrInvalidConfig)
	}
	return nil
}

// NATSEnabled reports whether records should be published to NATS
func (c *Config) NATSEnabled() bool { return c.NATSURL != "" }

// TracingEnabled reports whether spans should be exported
func (c *Config) TracingEnabled() bool { return c.OTLPEndpoint != "" }

// BlobEnabled reports whether records should be uploaded to blob storage
func (c *Config) BlobEnabled() bool { return c.BlobConnectionString != "" }

// String returns a formatted string representation of the config.
// The blob connection string is never printed.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{NATSURL: %q, NATSSubject: %q, ServiceName: %q, OTLPEndpoint: %q, SampleRatio: %v, JSTimeout: %s, Blob: %t, FlushEvery: %d, Source: %s}",
		c.NATSURL,
		c.NATSSubject,
		c.ServiceName,
		c.OTLPEndpoint,
		c.TraceSampleRatio,
		c.JSTimeout,
		c.BlobEnabled(),
		c.FlushEvery,
		c.Source,
	)
}

func anySet() bool {
	for _, key := range []string{
		EnvNATSURL, EnvNATSSubject, EnvNATSName, EnvServiceName, EnvOTLPEndpoint,
		EnvTraceSampleRatio, EnvJSTimeout, EnvBlobConnectionString, EnvBlobContainer, EnvFlushEvery,
	} {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

// getEnv retrieves a string from environment variable with default fallback
func getEnv(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer from environment variable with default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("750ms") or whole milliseconds ("750")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
