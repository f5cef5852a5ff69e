package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/smallbiznis/estate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestNewPublisherWithoutNATSIsNoop(t *testing.T) {
	pub, err := NewPublisher(Params{
		Lifecycle: fxtest.NewLifecycle(t),
		Cfg:       config.Config{AppName: "estate"},
		Log:       zap.NewNop(),
	})
	require.NoError(t, err)
	assert.IsType(t, NoopPublisher{}, pub)
	assert.NotPanics(t, func() { pub.Publish(context.Background(), InvoiceCreated, nil) })
}

func TestEventEnvelopeEncoding(t *testing.T) {
	occurred := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	payload, err := json.Marshal(Event{ID: "e1", Type: InvoicePaid, OccurredAt: occurred, Data: map[string]string{"invoice_number": "INV-2026-000001"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"e1","type":"invoice.paid","occurred_at":"2026-02-01T10:00:00Z","data":{"invoice_number":"INV-2026-000001"}}`, string(payload))
}

func TestRecorderKeepsOrder(t *testing.T) {
	rec := &Recorder{}
	rec.Publish(context.Background(), InvoiceCreated, nil)
	rec.Publish(context.Background(), WorkflowStatusChanged, nil)
	assert.Equal(t, []string{InvoiceCreated, WorkflowStatusChanged}, rec.Types())
}
