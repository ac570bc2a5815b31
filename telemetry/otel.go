package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// OtelTelemetry adapts an OpenTelemetry TracerProvider/MeterProvider
// (already configured by the embedding application) to the Telemetry
// interface. Grounded on this codebase's otel wiring
// (go.opentelemetry.io/otel across core/orchestration/resilience).
type OtelTelemetry struct {
	tracer  oteltrace.Tracer
	counter otelmetric.Float64Counter
}

// NewOtelTelemetry builds an OtelTelemetry using the global otel
// providers under the given instrumentation name. Call
// otel.SetTracerProvider/otel.SetMeterProvider beforehand to point it
// at a real exporter; left unset, the otel SDK's no-op providers make
// this behave like NoOpTelemetry.
func NewOtelTelemetry(instrumentationName string) *OtelTelemetry {
	meter := otel.Meter(instrumentationName)
	counter, _ := meter.Float64Counter(instrumentationName + ".metric")
	return &OtelTelemetry{
		tracer:  otel.Tracer(instrumentationName),
		counter: counter,
	}
}

func (t *OtelTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, otelSpan{span}
}

func (t *OtelTelemetry) RecordMetric(name string, value float64, labels map[string]string) {
	if t.counter == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(labels)+1)
	attrs = append(attrs, attribute.String("metric.name", name))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	t.counter.Add(context.Background(), value, otelmetric.WithAttributes(attrs...))
}

type otelSpan struct {
	span oteltrace.Span
}

func (s otelSpan) End() { s.span.End() }
func (s otelSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
}
func (s otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
}
