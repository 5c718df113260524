// Package telemetry wires OpenTelemetry tracing around the OCR pipeline,
// the inline response engine, and the chatbot dispatcher, mirroring the OTel fields already
// present in the teacher's internal/config.Config (an "endpoint" for an
// OTLP collector) even though no concrete exporter is pulled in here — the
// pack's go.mod carries only go.opentelemetry.io/otel/{sdk,trace}, not an
// OTLP exporter, so Init wires a real SDK TracerProvider whose export
// destination a deployment can attach by registering a span processor
// before traffic starts.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/nextlevelbuilder/discordctx"

// Init installs a process-global TracerProvider tagged with serviceName and
// returns a shutdown func that flushes and releases it. Call once at process
// start; Tracer() works against a no-op provider if Init was never called,
// so components never need a nil check.
func Init(serviceName string) (shutdown func(context.Context) error, err error) {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	slog.Info("telemetry: tracer provider installed", "service", serviceName)
	return tp.Shutdown, nil
}

// Tracer returns the shared tracer every component should use for its spans.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan is a small convenience wrapper so call sites read like the
// teacher's structured-logging calls: one line naming the operation plus
// key/value attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError marks span as failed and attaches err, following the ambient
// error-handling convention (log and continue, but keep the trace honest
// about what failed).
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
