package monitoring

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kairos-sim/kairos/sim/timing"
)

const tracerName = "github.com/kairos-sim/kairos/monitoring"

// InitTracing installs a global tracer provider. When enabled, spans are
// written as JSON to w; otherwise a no-op provider is installed. The returned
// function flushes and stops the provider.
func InitTracing(
	ctx context.Context,
	enabled bool,
	w io.Writer,
) (func(context.Context) error, error) {
	if !enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		return nil, fmt.Errorf("monitoring: create exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", "kairos")),
	)
	if err != nil {
		return nil, fmt.Errorf("monitoring: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// TraceRun calls engine.Run inside a span that records the backend and the
// clock and event counters before and after the run.
func TraceRun(ctx context.Context, engine timing.Engine) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "engine.Run",
		trace.WithAttributes(
			attribute.String("kairos.backend", string(engine.Backend())),
			attribute.String("kairos.start", engine.Now().String()),
			attribute.Int("kairos.pending", engine.PendingCount()),
		))
	defer span.End()

	before := engine.EventCount()

	err := engine.Run()

	span.SetAttributes(
		attribute.String("kairos.end", engine.Now().String()),
		attribute.Int64("kairos.dispatched", int64(engine.EventCount()-before)),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}
