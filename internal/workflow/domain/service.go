package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/estate/internal/authorization"
	invoicedomain "github.com/smallbiznis/estate/internal/invoice/domain"
	"gorm.io/gorm"
)

type CreateWorkflowRequest struct {
	PropertyID     int64
	CountryCode    string
	CurrencyCode   string
	CurrencySymbol string
}

type CheckoutRequest struct {
	Type        invoicedomain.InvoiceType
	PlanID      *snowflake.ID
	Subtotal    decimal.Decimal
	IsTaxExempt bool
	Description string
}

type CheckoutResult struct {
	Workflow   *Workflow              `json:"workflow"`
	Invoice    *invoicedomain.Invoice `json:"invoice"`
	Superseded *snowflake.ID          `json:"superseded_invoice_id,omitempty,string"`
}

type PaymentResult struct {
	Invoice  *invoicedomain.Invoice `json:"invoice"`
	Workflow *Workflow              `json:"workflow,omitempty"`
}

type PendingReviewsPage struct {
	Workflows []Workflow `json:"workflows"`
	Page      int        `json:"page"`
	Limit     int        `json:"limit"`
	Total     int64      `json:"total"`
}

// StatusUpdate is a conditional status change keyed on the expected status.
type StatusUpdate struct {
	From             Status
	To               Status
	ChangesRequested bool
	ReviewNotes      *string
	Now              time.Time
}

type Service interface {
	CreateWorkflow(ctx context.Context, actor authorization.Actor, req CreateWorkflowRequest) (*Workflow, error)
	GetWorkflow(ctx context.Context, id snowflake.ID) (*Workflow, error)
	GetByProperty(ctx context.Context, propertyID int64) (*Workflow, error)
	UpdateWorkflowStatus(ctx context.Context, actor authorization.Actor, id snowflake.ID, to Status, notes string) (*Workflow, error)
	Review(ctx context.Context, actor authorization.Actor, id snowflake.ID, action ReviewAction, notes string) (*Workflow, error)
	LinkInvoice(ctx context.Context, id snowflake.ID, invoiceID snowflake.ID, supersede bool) (*Workflow, error)
	Checkout(ctx context.Context, actor authorization.Actor, id snowflake.ID, req CheckoutRequest) (*CheckoutResult, error)
	ConfirmPayment(ctx context.Context, actor authorization.Actor, invoiceID snowflake.ID, reference string) (*PaymentResult, error)
	GetAuditLog(ctx context.Context, propertyID int64, limit int) ([]AuditEntry, error)
	ListPendingReviews(ctx context.Context, page, limit int) (PendingReviewsPage, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, workflow *Workflow) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Workflow, error)
	FindByProperty(ctx context.Context, db *gorm.DB, propertyID int64) (*Workflow, error)
	FindByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*Workflow, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, update StatusUpdate) (int64, error)
	SetInvoice(ctx context.Context, tx *gorm.DB, id snowflake.ID, expected *snowflake.ID, invoiceID snowflake.ID, now time.Time) (int64, error)
	InsertAudit(ctx context.Context, tx *gorm.DB, entry *AuditEntry) error
	ListAudit(ctx context.Context, db *gorm.DB, propertyID int64, limit int) ([]AuditEntry, error)
	ListByStatus(ctx context.Context, db *gorm.DB, status Status, limit, offset int) ([]Workflow, int64, error)
}
