package batch

import (
	internalreporting "github.com/wehubfusion/Daedalus/internal/reporting"
	internaltracing "github.com/wehubfusion/Daedalus/internal/tracing"
)

// TracingConfig is the public tracing configuration used by Runner clients.
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
	cfg := internaltracing.DefaultConfig(serviceName)
	return TracingConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRatio:    cfg.SampleRatio,
	}
}

func (c TracingConfig) toInternalConfig() internaltracing.Config {
	return internaltracing.Config{
		ServiceName:    c.ServiceName,
		ServiceVersion: c.ServiceVersion,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTLPEndpoint,
		SampleRatio:    c.SampleRatio,
	}
}

// ReportingConfig is the public Sentry configuration used by Runner clients.
type ReportingConfig struct {
	DSN         string
	Environment string
	Release     string
}

func (c ReportingConfig) toInternalConfig() internalreporting.Config {
	return internalreporting.Config{
		DSN:         c.DSN,
		Environment: c.Environment,
		Release:     c.Release,
	}
}
