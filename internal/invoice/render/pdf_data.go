package render

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/estate/internal/providers/pdf"
	taxservice "github.com/smallbiznis/estate/internal/tax/service"
)

// PDFInvoiceData maps an invoice onto the PDF layout. Amounts use the ISO
// currency code because the embedded PDF fonts lack Arabic glyphs.
func PDFInvoiceData(input RenderInput) pdf.InvoiceData {
	inv := input.Invoice
	money := func(v decimal.Decimal) string {
		return inv.CurrencyCode + " " + taxservice.GroupThousands(v.StringFixed(input.Scale))
	}

	data := pdf.InvoiceData{
		CompanyName:   input.CompanyName,
		InvoiceNumber: inv.InvoiceNumber,
		IssueDate:     formatDate(inv.CreatedAt),
		Status:        string(inv.Status),
		BillTo:        fmt.Sprintf("User #%d", inv.UserID),
		Country:       inv.CountryCode + " / " + inv.CurrencyCode,
		Subtotal:      money(inv.Subtotal),
		TaxLabel:      TaxLabel(inv),
		Tax:           money(inv.TaxAmount),
		Total:         money(inv.Total),
	}
	if inv.PropertyID != nil {
		data.Property = fmt.Sprintf("Property #%d", *inv.PropertyID)
	}
	for _, item := range input.Items {
		data.Items = append(data.Items, pdf.InvoiceItem{
			Description: item.Description,
			Qty:         item.Quantity,
			UnitPrice:   money(item.UnitAmount),
			Amount:      money(item.Amount),
		})
	}
	return data
}

func PDFReceiptData(input RenderInput) pdf.ReceiptData {
	receipt := pdf.ReceiptData{
		InvoiceData: PDFInvoiceData(input),
		DatePaid:    formatDatePtr(input.Invoice.PaidAt),
	}
	if ref := input.Invoice.PaymentReference; ref != nil {
		receipt.PaymentReference = *ref
	}
	return receipt
}
