package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoOpTelemetry(t *testing.T) {
	var tel Telemetry = NoOpTelemetry{}
	ctx, span := tel.StartSpan(context.Background(), "op")
	assert.NotNil(t, ctx)
	span.SetAttribute("k", "v")
	span.RecordError(errors.New("boom"))
	span.End()
	tel.RecordMetric("m", 1, map[string]string{"a": "b"})
}
