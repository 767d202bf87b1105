// Copyright 2025 James Ross
package obs

import (
	"context"

	"github.com/dclexplorer/consumer-processor/internal/config"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "consumer-processor"

// MaybeInitTracing installs a sampling tracer provider when tracing is
// enabled in config, otherwise leaves the global no-op provider in place.
// It never fails the caller: errors are returned for logging only.
func MaybeInitTracing(cfg *config.Config) (*sdktrace.TracerProvider, error) {
	if !cfg.Observability.Tracing.Enabled {
		return nil, nil
	}
	sampler := sdktrace.TraceIDRatioBased(cfg.Observability.Tracing.SamplingRate)
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.ParentBased(sampler)))
	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartSpan starts a span under the package tracer, a thin convenience
// wrapper used by queue and pipeline code so the rest of the codebase never
// imports otel directly.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name)
}
