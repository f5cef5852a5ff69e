package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("country_code", "SA"),
		attribute.String("user_id", "456"),
		attribute.String("to_status", "approved"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("country_code"), attrs[0].Key)
	assert.Equal(t, attribute.Key("to_status"), attrs[1].Key)
}

func TestRecordersToleratesNilMetrics(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordInvoiceCreated(ctx, "SA", "SAR")
		m.RecordWorkflowTransition(ctx, "draft", "pending_payment")
		m.RecordRateRefresh(ctx, "static", "ok")
		m.RecordRateFallback(ctx, "EGP")
		m.RecordRateStale(ctx, "EGP")
		m.RecordRateLimitDenied(ctx, "/pricing/convert")
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordInvoiceCreated(context.Background(), "AE", "AED")
	})
}
