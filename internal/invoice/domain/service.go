package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateInvoiceRequest struct {
	UserID         int64
	Type           InvoiceType
	PlanID         *snowflake.ID
	PropertyID     *int64
	WorkflowID     *snowflake.ID
	CountryCode    string
	CurrencyCode   string
	CurrencySymbol string
	Subtotal       decimal.Decimal
	IsTaxExempt    bool
	Description    string
}

type ListInvoicesFilter struct {
	UserID      *int64
	Status      InvoiceStatus
	CountryCode string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
}

type UserInvoicesPage struct {
	Invoices []Invoice `json:"invoices"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
	Total    int64     `json:"total"`
}

type Service interface {
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	// CreateInvoiceTx creates the invoice inside the caller's transaction.
	// The caller must call NotifyCreated once the transaction commits.
	CreateInvoiceTx(ctx context.Context, tx *gorm.DB, req CreateInvoiceRequest) (*Invoice, error)
	GetInvoice(ctx context.Context, id snowflake.ID) (*Invoice, error)
	GetInvoiceTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Invoice, error)
	GetInvoiceItems(ctx context.Context, id snowflake.ID) ([]InvoiceItem, error)
	GetUserInvoices(ctx context.Context, userID int64, page, limit int) (UserInvoicesPage, error)
	ListInvoices(ctx context.Context, filter ListInvoicesFilter) ([]Invoice, error)
	MarkPaidTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, reference string) (*Invoice, error)
	SupersedeTx(ctx context.Context, tx *gorm.DB, oldID, newID snowflake.ID) error
	NotifyCreated(ctx context.Context, invoice *Invoice)
	NotifyPaid(ctx context.Context, invoice *Invoice)
}

type Repository interface {
	NextSequence(ctx context.Context, tx *gorm.DB, scope string, now time.Time) (int64, error)
	Insert(ctx context.Context, tx *gorm.DB, invoice *Invoice, items []InvoiceItem) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceItem, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID int64, limit, offset int) ([]Invoice, int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListInvoicesFilter) ([]Invoice, error)
	MarkPaid(ctx context.Context, tx *gorm.DB, id snowflake.ID, reference string, now time.Time) (int64, error)
	Supersede(ctx context.Context, tx *gorm.DB, oldID, newID snowflake.ID, now time.Time) (int64, error)
}
