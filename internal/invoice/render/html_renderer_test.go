package render

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/estate/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInput() RenderInput {
	property := int64(77)
	created := time.Date(2026, 2, 3, 22, 30, 0, 0, time.FixedZone("AST", 3*60*60))
	return RenderInput{
		Invoice: invoicedomain.Invoice{
			ID:             snowflake.ID(1),
			InvoiceNumber:  "INV-2026-000001",
			UserID:         12,
			PropertyID:     &property,
			CountryCode:    "AE",
			CurrencyCode:   "AED",
			CurrencySymbol: "AED",
			Subtotal:       decimal.RequireFromString("1000"),
			TaxRate:        decimal.RequireFromString("5"),
			TaxAmount:      decimal.RequireFromString("50"),
			Total:          decimal.RequireFromString("1050"),
			Status:         invoicedomain.InvoiceStatusUnpaid,
			CreatedAt:      created,
		},
		Items: []invoicedomain.InvoiceItem{{
			Description: "Featured listing <30 days>",
			Quantity:    1,
			UnitAmount:  decimal.RequireFromString("1000"),
			Amount:      decimal.RequireFromString("1000"),
		}},
		Scale:       2,
		CompanyName: "Estate",
	}
}

func TestRenderHTMLIsDeterministic(t *testing.T) {
	r := NewRenderer()

	first, err := r.RenderHTML(sampleInput())
	require.NoError(t, err)
	second, err := r.RenderHTML(sampleInput())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderHTMLContent(t *testing.T) {
	out, err := NewRenderer().RenderHTML(sampleInput())
	require.NoError(t, err)

	assert.Contains(t, out, "INV-2026-000001")
	assert.Contains(t, out, "AED 1,000.00")
	assert.Contains(t, out, "AED 50.00")
	assert.Contains(t, out, "AED 1,050.00")
	assert.Contains(t, out, "Tax (5%)")
	assert.Contains(t, out, "Property #77")
	assert.Contains(t, out, "2026-02-03")
	assert.Contains(t, out, "Featured listing &lt;30 days&gt;")
}

func TestRenderHTMLExemptAndZeroScale(t *testing.T) {
	input := sampleInput()
	input.Invoice.IsTaxExempt = true
	input.Invoice.CurrencySymbol = ""
	input.Invoice.CurrencyCode = "JPY"
	input.Invoice.Total = decimal.RequireFromString("1000")
	input.Scale = 0

	out, err := NewRenderer().RenderHTML(input)
	require.NoError(t, err)
	assert.Contains(t, out, "Tax (exempt)")
	assert.Contains(t, out, "JPY 1,000")
	assert.NotContains(t, out, "1,000.00")
}
