package pdf

import "context"

// Provider renders invoice documents to PDF bytes.
type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error)
	GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

type InvoiceData struct {
	CompanyName   string
	InvoiceNumber string
	IssueDate     string
	Status        string
	BillTo        string
	Property      string
	Country       string

	Items []InvoiceItem

	Subtotal string
	TaxLabel string
	Tax      string
	Total    string
}

type InvoiceItem struct {
	Description string
	Qty         int64
	UnitPrice   string
	Amount      string
}

type ReceiptData struct {
	InvoiceData
	DatePaid         string
	PaymentReference string
}
