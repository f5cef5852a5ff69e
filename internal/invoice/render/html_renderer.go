package render

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/estate/internal/invoice/domain"
	taxservice "github.com/smallbiznis/estate/internal/tax/service"
)

const invoiceHTMLTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Invoice {{.Invoice.InvoiceNumber}}</title>
  <style>
    body { margin: 0; padding: 40px; font-family: -apple-system, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; color: #1a1f36; background: #f7f9fc; }
    .invoice-card { background: #ffffff; max-width: 760px; margin: 0 auto; padding: 60px; border-radius: 4px; }
    .header { display: flex; justify-content: space-between; margin-bottom: 40px; }
    .header h1 { margin: 0; font-size: 24px; }
    .label { font-size: 11px; text-transform: uppercase; color: #8792a2; margin-bottom: 6px; font-weight: 600; }
    .value { font-size: 14px; line-height: 1.5; }
    .status { font-weight: 600; text-transform: uppercase; color: #8792a2; }
    table { width: 100%; border-collapse: collapse; margin: 30px 0; }
    th { text-align: left; font-size: 11px; text-transform: uppercase; color: #8792a2; border-bottom: 1px solid #e3e8ee; padding: 10px 0; }
    td { padding: 16px 0; border-bottom: 1px solid #e3e8ee; font-size: 14px; }
    .right { text-align: right; }
    .totals { display: flex; flex-direction: column; align-items: flex-end; }
    .total-row { display: flex; justify-content: space-between; width: 280px; padding: 6px 0; font-size: 14px; }
    .total-final { border-top: 1px solid #e3e8ee; margin-top: 10px; padding-top: 10px; font-weight: 700; font-size: 16px; }
  </style>
</head>
<body>
  <div class="invoice-card">
    <div class="header">
      <div>
        <h1>Invoice</h1>
        <div class="label" style="margin-top: 12px;">Invoice number</div>
        <div class="value">{{.Invoice.InvoiceNumber}}</div>
      </div>
      <div>
        <div class="value"><strong>{{.CompanyName}}</strong></div>
        <div class="status">{{.Invoice.Status}}</div>
      </div>
    </div>

    <div class="header">
      <div>
        <div class="label">Billed to</div>
        <div class="value">User #{{.Invoice.UserID}}</div>
        {{if .Invoice.PropertyID}}<div class="value">Property #{{deref .Invoice.PropertyID}}</div>{{end}}
      </div>
      <div>
        <div class="label">Date issued</div>
        <div class="value">{{formatDate .Invoice.CreatedAt}}</div>
        <div class="label" style="margin-top: 16px;">Country</div>
        <div class="value">{{.Invoice.CountryCode}} / {{.Invoice.CurrencyCode}}</div>
        {{if .Invoice.PaidAt}}<div class="label" style="margin-top: 16px;">Date paid</div>
        <div class="value">{{formatDatePtr .Invoice.PaidAt}}</div>{{end}}
      </div>
    </div>

    <table>
      <thead>
        <tr>
          <th style="width: 50%;">Description</th>
          <th class="right">Qty</th>
          <th class="right">Unit price</th>
          <th class="right">Amount</th>
        </tr>
      </thead>
      <tbody>
        {{range .Items}}
        <tr>
          <td>{{.Description}}</td>
          <td class="right">{{.Quantity}}</td>
          <td class="right">{{money .UnitAmount}}</td>
          <td class="right">{{money .Amount}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>

    <div class="totals">
      <div class="total-row"><span>Subtotal</span><span>{{money .Invoice.Subtotal}}</span></div>
      <div class="total-row"><span>{{.TaxLabel}}</span><span>{{money .Invoice.TaxAmount}}</span></div>
      <div class="total-row total-final"><span>Total</span><span>{{money .Invoice.Total}}</span></div>
    </div>
  </div>
</body>
</html>
`

type RenderInput struct {
	Invoice     invoicedomain.Invoice
	Items       []invoicedomain.InvoiceItem
	Scale       int32
	CompanyName string
}

type Renderer interface {
	RenderHTML(input RenderInput) (string, error)
}

type HTMLRenderer struct {
	tpl *template.Template
}

func NewRenderer() Renderer {
	return &HTMLRenderer{
		tpl: template.Must(template.New("invoice").Funcs(template.FuncMap{
			"formatDate":    formatDate,
			"formatDatePtr": formatDatePtr,
			"deref":         func(v *int64) int64 { return *v },
			// money is replaced per render with the invoice's scale and symbol.
			"money": func(decimal.Decimal) string { return "" },
		}).Parse(invoiceHTMLTemplate)),
	}
}

// RenderHTML renders the invoice. Output depends only on input: dates are
// formatted in UTC and amounts at the currency's fixed scale.
func (r *HTMLRenderer) RenderHTML(input RenderInput) (string, error) {
	tpl, err := r.tpl.Clone()
	if err != nil {
		return "", err
	}
	symbol := input.Invoice.CurrencySymbol
	if strings.TrimSpace(symbol) == "" {
		symbol = input.Invoice.CurrencyCode
	}
	tpl.Funcs(template.FuncMap{
		"money": func(v decimal.Decimal) string {
			return taxservice.FormatMoney(v, input.Scale, symbol)
		},
	})

	view := struct {
		RenderInput
		TaxLabel string
	}{RenderInput: input, TaxLabel: TaxLabel(input.Invoice)}
	if view.CompanyName == "" {
		view.CompanyName = "Invoice"
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// TaxLabel describes the tax line of an invoice, e.g. "Tax (15%)".
func TaxLabel(invoice invoicedomain.Invoice) string {
	if invoice.IsTaxExempt {
		return "Tax (exempt)"
	}
	return "Tax (" + invoice.TaxRate.String() + "%)"
}

func formatDate(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.UTC().Format("2006-01-02")
}

func formatDatePtr(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return formatDate(*value)
}
