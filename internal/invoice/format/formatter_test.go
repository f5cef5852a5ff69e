package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumberDefaultTemplate(t *testing.T) {
	at := time.Date(2026, 4, 9, 23, 0, 0, 0, time.UTC)

	got, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, at, 42)
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-000042", got)
}

func TestFormatInvoiceNumberTokens(t *testing.T) {
	at := time.Date(2026, 4, 9, 0, 0, 0, 0, time.UTC)

	got, err := FormatInvoiceNumber("{YY}{MM}{DD}/{SEQ}", at, 7)
	require.NoError(t, err)
	assert.Equal(t, "260409/7", got)
}

func TestFormatInvoiceNumberRejectsBadInput(t *testing.T) {
	at := time.Now()

	_, err := FormatInvoiceNumber("", at, 1)
	assert.Error(t, err)
	_, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, at, 0)
	assert.Error(t, err)
	_, err = FormatInvoiceNumber("INV-{YYYY}", at, 1)
	assert.Error(t, err)
	_, err = FormatInvoiceNumber("INV-{Q}-{SEQ4}", at, 1)
	assert.Error(t, err)
}

func TestSequenceScopeResolvesDatesOnly(t *testing.T) {
	at := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "INV-2027-{SEQ6}", SequenceScope(DefaultInvoiceNumberTemplate, at))
}
