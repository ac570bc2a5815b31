// Package telemetry provides the optional tracing/metrics interface
// used by the planning core (SPEC_FULL.md §10.2). The HTN engine,
// execution driver and planner accept a Telemetry and default to
// NoOpTelemetry, so instrumentation
// never changes planning results (spec.md §4.7's verbosity invariant
// extended to spans/metrics).
package telemetry

import "context"

// Span represents one unit of traced work.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// Telemetry starts spans and records metrics.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// NoOpTelemetry discards everything.
type NoOpTelemetry struct{}

func (NoOpTelemetry) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noOpSpan{}
}
func (NoOpTelemetry) RecordMetric(string, float64, map[string]string) {}

type noOpSpan struct{}

func (noOpSpan) End()                               {}
func (noOpSpan) SetAttribute(string, interface{})   {}
func (noOpSpan) RecordError(error)                  {}
