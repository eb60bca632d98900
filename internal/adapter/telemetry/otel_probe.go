// Package telemetry wires the OpenTelemetry SDK behind the core's probe
// port: trace spans for storage and store operations, a prometheus registry
// for metrics, and the exporters that ship both out of the process.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"todostream/internal/core/port"
)

const tracerName = "todostream"

// OTelProbe implements port.Telemetry on the OpenTelemetry SDK.
type OTelProbe struct {
	logger zerolog.Logger
}

func NewOTelProbe(logger zerolog.Logger) port.Telemetry {
	return &OTelProbe{
		logger: logger.With().Str("component", "telemetry").Logger(),
	}
}

// otelSpan adapts a trace.Span to the core's Span interface.
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttributes(attrs map[string]interface{}) {
	s.span.SetAttributes(mapAttrs(attrs)...)
}

func (s *otelSpan) SetStatus(code string, message string) {
	var statusCode codes.Code
	switch code {
	case "ok":
		statusCode = codes.Ok
	case "error":
		statusCode = codes.Error
	default:
		statusCode = codes.Unset
	}
	s.span.SetStatus(statusCode, message)
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

// mapAttrs converts the core's plain attribute maps into typed otel
// attributes. Unknown types fall back to their string rendering.
func mapAttrs(attrs map[string]interface{}) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(attrs))
	for key, value := range attrs {
		switch v := value.(type) {
		case string:
			out = append(out, attribute.String(key, v))
		case int:
			out = append(out, attribute.Int(key, v))
		case int64:
			out = append(out, attribute.Int64(key, v))
		case float64:
			out = append(out, attribute.Float64(key, v))
		case bool:
			out = append(out, attribute.Bool(key, v))
		default:
			out = append(out, attribute.String(key, fmt.Sprintf("%v", v)))
		}
	}
	return out
}

func (p *OTelProbe) StartStorageSpan(ctx context.Context, operation string, backend string, attrs map[string]interface{}) (context.Context, port.Span) {
	standard := []attribute.KeyValue{
		attribute.String("storage.backend", backend),
		attribute.String("storage.operation", operation),
		attribute.String("component", "storage"),
	}
	standard = append(standard, mapAttrs(attrs)...)

	ctx, span := otel.Tracer(tracerName).Start(ctx,
		fmt.Sprintf("storage.%s.%s", backend, operation),
		trace.WithAttributes(standard...))
	return ctx, &otelSpan{span: span}
}

func (p *OTelProbe) StartStoreSpan(ctx context.Context, store string, operation string, attrs map[string]interface{}) (context.Context, port.Span) {
	standard := []attribute.KeyValue{
		attribute.String("store.name", store),
		attribute.String("store.operation", operation),
		attribute.String("component", "store"),
	}
	standard = append(standard, mapAttrs(attrs)...)

	ctx, span := otel.Tracer(tracerName).Start(ctx,
		fmt.Sprintf("store.%s.%s", store, operation),
		trace.WithAttributes(standard...))
	return ctx, &otelSpan{span: span}
}

func (p *OTelProbe) RecordStorageOperation(ctx context.Context, operation string, backend string, duration time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("storage.backend", backend),
		attribute.String("storage.operation", operation),
		attribute.Int64("duration_ns", duration.Nanoseconds()),
		attribute.Bool("has_error", err != nil),
	)

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		p.logger.Error().
			Err(err).
			Str("backend", backend).
			Str("operation", operation).
			Dur("duration", duration).
			Msg("storage operation failed")
	}
}

func (p *OTelProbe) RecordStoreEvent(ctx context.Context, store string, event string, metadata map[string]interface{}) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(fmt.Sprintf("store.%s.%s", store, event), trace.WithAttributes(mapAttrs(metadata)...))

	p.logger.Debug().
		Str("store", store).
		Str("event", event).
		Fields(metadata).
		Msg("store event")
}

func (p *OTelProbe) RecordError(ctx context.Context, operation string, err error, metadata map[string]interface{}) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)

	p.logger.Error().
		Err(err).
		Str("operation", operation).
		Fields(metadata).
		Msg("operation error recorded")
}
