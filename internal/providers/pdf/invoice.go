package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error) {
	if data.InvoiceNumber == "" {
		return nil, fmt.Errorf("invoice number is required")
	}
	m := newDocument()
	addHeader(m, "Invoice", data)
	m.AddRow(8, text.NewCol(12, "Date of issue: "+data.IssueDate, props.Text{Size: 9}))
	addBody(m, data)
	return generate(m)
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error) {
	if data.InvoiceNumber == "" {
		return nil, fmt.Errorf("invoice number is required")
	}
	m := newDocument()
	addHeader(m, "Receipt", data.InvoiceData)
	m.AddRow(16, col.New(12).Add(
		text.New("Date paid: "+data.DatePaid, props.Text{Size: 9}),
		text.New("Payment reference: "+data.PaymentReference, props.Text{Size: 9, Top: 5}),
	))
	m.AddRow(12, text.NewCol(12, data.Total+" paid on "+data.DatePaid, props.Text{
		Size:  12,
		Style: fontstyle.Bold,
		Top:   3,
	}))
	addBody(m, data.InvoiceData)
	return generate(m)
}

func newDocument() core.Maroto {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	return maroto.New(cfg)
}

func addHeader(m core.Maroto, title string, data InvoiceData) {
	m.AddRow(14,
		text.NewCol(8, title, props.Text{Size: 20, Style: fontstyle.Bold, Align: align.Left}),
		text.NewCol(4, data.CompanyName, props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(22,
		col.New(6).Add(
			text.New("Invoice number: "+data.InvoiceNumber, props.Text{Size: 9}),
			text.New("Status: "+data.Status, props.Text{Size: 9, Top: 5}),
			text.New("Country: "+data.Country, props.Text{Size: 9, Top: 10}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Size: 9, Style: fontstyle.Bold}),
			text.New(data.BillTo, props.Text{Size: 9, Top: 5}),
			text.New(data.Property, props.Text{Size: 9, Top: 10}),
		),
	)
}

func addBody(m core.Maroto, data InvoiceData) {
	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range data.Items {
		m.AddRow(10,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Qty), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	totals := []struct{ label, value string }{
		{"Subtotal", data.Subtotal},
		{data.TaxLabel, data.Tax},
		{"Total", data.Total},
	}
	for _, row := range totals {
		m.AddRow(8,
			col.New(7),
			text.NewCol(3, row.label, props.Text{Size: 9}),
			text.NewCol(2, row.value, props.Text{Size: 9, Align: align.Right}),
		)
	}
}

func generate(m core.Maroto) ([]byte, error) {
	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
