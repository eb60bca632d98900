package telemetry

import (
	"context"
	"time"

	"todostream/internal/core/port"
)

// NoOpProbe implements Telemetry with no operations - used in tests and
// whenever telemetry is disabled.
type NoOpProbe struct{}

func NewNoOpProbe() port.Telemetry {
	return &NoOpProbe{}
}

// NoOpSpan implements the Span interface with no operations
type NoOpSpan struct{}

func (s *NoOpSpan) End()                                       {}
func (s *NoOpSpan) SetAttributes(attrs map[string]interface{}) {}
func (s *NoOpSpan) SetStatus(code string, message string)      {}
func (s *NoOpSpan) RecordError(err error)                      {}

func (p *NoOpProbe) StartStorageSpan(ctx context.Context, operation string, backend string, attrs map[string]interface{}) (context.Context, port.Span) {
	return ctx, &NoOpSpan{}
}

func (p *NoOpProbe) StartStoreSpan(ctx context.Context, store string, operation string, attrs map[string]interface{}) (context.Context, port.Span) {
	return ctx, &NoOpSpan{}
}

func (p *NoOpProbe) RecordStorageOperation(ctx context.Context, operation string, backend string, duration time.Duration, err error) {
	// No operation
}

func (p *NoOpProbe) RecordStoreEvent(ctx context.Context, store string, event string, metadata map[string]interface{}) {
	// No operation
}

func (p *NoOpProbe) RecordError(ctx context.Context, operation string, err error, metadata map[string]interface{}) {
	// No operation
}
