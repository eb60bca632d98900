package port

import (
	"context"
	"time"
)

// Span is the core's view of a trace span. Attributes travel as plain maps
// so the core never depends on a tracing SDK.
type Span interface {
	End()
	SetAttributes(attrs map[string]interface{})
	SetStatus(code string, message string)
	RecordError(err error)
}

// Telemetry lets the core emit traces and measurements without knowing the
// implementation. A no-op probe stands in when telemetry is disabled.
type Telemetry interface {
	// Tracing - span creation
	StartStorageSpan(ctx context.Context, operation string, backend string, attrs map[string]interface{}) (context.Context, Span)
	StartStoreSpan(ctx context.Context, store string, operation string, attrs map[string]interface{}) (context.Context, Span)

	// Storage operations
	RecordStorageOperation(ctx context.Context, operation string, backend string, duration time.Duration, err error)

	// Store events
	RecordStoreEvent(ctx context.Context, store string, event string, metadata map[string]interface{})

	// Errors
	RecordError(ctx context.Context, operation string, err error, metadata map[string]interface{})
}
