package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleData() InvoiceData {
	return InvoiceData{
		CompanyName:   "Estate",
		InvoiceNumber: "INV-2026-000001",
		IssueDate:     "2026-02-03",
		Status:        "unpaid",
		BillTo:        "User #12",
		Property:      "Property #77",
		Country:       "AE / AED",
		Items:         []InvoiceItem{{Description: "Featured listing", Qty: 1, UnitPrice: "AED 1,000.00", Amount: "AED 1,000.00"}},
		Subtotal:      "AED 1,000.00",
		TaxLabel:      "Tax (5%)",
		Tax:           "AED 50.00",
		Total:         "AED 1,050.00",
	}
}

func TestGenerateInvoiceProducesPDF(t *testing.T) {
	out, err := New().GenerateInvoice(context.Background(), sampleData())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestGenerateReceiptProducesPDF(t *testing.T) {
	out, err := New().GenerateReceipt(context.Background(), ReceiptData{
		InvoiceData:      sampleData(),
		DatePaid:         "2026-02-04",
		PaymentReference: "****1234",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestGenerateInvoiceRequiresNumber(t *testing.T) {
	data := sampleData()
	data.InvoiceNumber = ""
	_, err := New().GenerateInvoice(context.Background(), data)
	assert.Error(t, err)
}
