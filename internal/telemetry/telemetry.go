// Package telemetry constructs the OpenTelemetry providers the LLM
// Gateway (C5) instruments against: a meter for
// token/duration counters, a tracer for per-call spans exported over
// OTLP/HTTP when an endpoint is configured.
//
// Grounded on the OTLP HTTP trace exporter setup pattern (resource
// construction, AlwaysSample, batched export) found across the example
// pack's otel initialization code.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName identifies this process to the OTLP backend.
const ServiceName = "journald"

// Providers bundles the constructed meter and tracer along with the
// underlying SDK providers, which the caller shuts down on exit.
type Providers struct {
	Meter  metric.Meter
	Tracer trace.Tracer

	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
}

// New builds a meter (in-process aggregation only; nothing in the example
// pack grounds an OTLP metric exporter) and, when otlpEndpoint is
// non-empty, a tracer that batches spans to that endpoint over OTLP/HTTP.
// An empty otlpEndpoint yields a tracer that samples but never exports.
func New(ctx context.Context, otlpEndpoint string) (*Providers, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(ServiceName)),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))

	var tpOpts []sdktrace.TracerProviderOption
	tpOpts = append(tpOpts, sdktrace.WithResource(res), sdktrace.WithSampler(sdktrace.AlwaysSample()))
	if otlpEndpoint != "" {
		exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(otlpEndpoint),
			otlptracehttp.WithInsecure(),
		))
		if err != nil {
			return nil, fmt.Errorf("telemetry: build otlp exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	return &Providers{
		Meter:          mp.Meter(ServiceName),
		Tracer:         tp.Tracer(ServiceName),
		meterProvider:  mp,
		tracerProvider: tp,
	}, nil
}

// Shutdown flushes and stops both providers. Call once at process exit.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var firstErr error
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
