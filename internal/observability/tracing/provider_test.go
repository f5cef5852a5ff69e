package tracing

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsPersonalData(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/workflow/invoice/:invoiceId"),
		attribute.String("user_id", "42"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorKeepsInnermostMessage(t *testing.T) {
	base := errors.New("invoice_not_found")
	wrapped := fmt.Errorf("load invoice 12 for user 7: %w", base)

	assert.EqualError(t, SafeError(wrapped), "invoice_not_found")
	assert.Nil(t, SafeError(nil))
}

func TestWrapHTTPClientKeepsTimeout(t *testing.T) {
	client := WrapHTTPClient(&http.Client{Timeout: 3})
	assert.Equal(t, int64(3), int64(client.Timeout))
	assert.NotNil(t, client.Transport)
}
