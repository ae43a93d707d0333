// Package instrumentation wraps OpenTelemetry for the OAuth server core.
// It hands out tracers, meters, and pre-built metric instruments. When
// disabled, all components are no-ops and the hot path pays nothing.
package instrumentation

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceName is used when the config does not name the service.
const DefaultServiceName = "cms-mcp-oauth"

// Config holds instrumentation configuration.
type Config struct {
	// ServiceName identifies the service in telemetry
	ServiceName string

	// ServiceVersion is the service version attribute
	ServiceVersion string

	// Enabled controls whether instrumentation is active. When false,
	// no-op providers are installed.
	Enabled bool

	// Resource overrides the default otel resource when set
	Resource *resource.Resource
}

// Instrumentation provides OpenTelemetry components to the rest of the
// module.
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	metrics *Metrics

	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates an Instrumentation instance. With Enabled false the returned
// instance is fully functional but records nothing.
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = "unknown"
	}

	res := config.Resource
	if res == nil {
		var err error
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:   config,
		resource: res,
		// Providers stay no-op until an exporter is wired by the host;
		// the host can install its own SDK providers globally.
		meterProvider:  noop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}

	var err error
	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

// Shutdown flushes and stops all registered providers.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var shutdownErr error
	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})
	return shutdownErr
}

// Meter returns a meter for the given scope.
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(i.config.ServiceName + "/" + scope)
}

// Tracer returns a tracer for the given scope.
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(i.config.ServiceName + "/" + scope)
}

// Metrics returns the pre-built metric instruments.
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// TracerProvider exposes the underlying tracer provider.
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}

// MeterProvider exposes the underlying meter provider.
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}
