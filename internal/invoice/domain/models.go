// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusUnpaid     InvoiceStatus = "unpaid"
	InvoiceStatusPaid       InvoiceStatus = "paid"
	InvoiceStatusSuperseded InvoiceStatus = "superseded"
)

type InvoiceType string

const (
	InvoiceTypeSubscription InvoiceType = "subscription"
	InvoiceTypeListing      InvoiceType = "listing"
)

func (t InvoiceType) Valid() bool {
	return t == InvoiceTypeSubscription || t == InvoiceTypeListing
}

// Invoice is immutable once created except for its payment state. Amounts are
// never rewritten; a correction is a new invoice that supersedes this one.
type Invoice struct {
	ID               snowflake.ID    `json:"id,string" gorm:"primaryKey"`
	InvoiceNumber    string          `json:"invoice_number" gorm:"type:text;not null;uniqueIndex:ux_invoices_number"`
	UserID           int64           `json:"user_id" gorm:"not null;index"`
	Type             InvoiceType     `json:"type" gorm:"type:text;not null"`
	PlanID           *snowflake.ID   `json:"plan_id,omitempty,string" gorm:"index"`
	PropertyID       *int64          `json:"property_id,omitempty" gorm:"index"`
	WorkflowID       *snowflake.ID   `json:"workflow_id,omitempty,string" gorm:"index"`
	CountryCode      string          `json:"country_code" gorm:"type:char(2);not null"`
	CurrencyCode     string          `json:"currency_code" gorm:"type:char(3);not null"`
	CurrencySymbol   string          `json:"currency_symbol" gorm:"type:text;not null"`
	Subtotal         decimal.Decimal `json:"subtotal" gorm:"type:numeric(18,4);not null"`
	TaxRate          decimal.Decimal `json:"tax_rate" gorm:"type:numeric(5,2);not null"`
	TaxAmount        decimal.Decimal `json:"tax_amount" gorm:"type:numeric(18,4);not null"`
	Total            decimal.Decimal `json:"total" gorm:"type:numeric(18,4);not null"`
	IsTaxExempt      bool            `json:"is_tax_exempt" gorm:"not null"`
	Description      string          `json:"description" gorm:"type:text;not null"`
	Status           InvoiceStatus   `json:"status" gorm:"type:text;not null;index"`
	SupersededBy     *snowflake.ID   `json:"superseded_by,omitempty,string"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	PaymentReference *string         `json:"payment_reference,omitempty" gorm:"type:text"`
	CreatedAt        time.Time       `json:"created_at" gorm:"not null;index"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"not null"`
}

func (Invoice) TableName() string { return "invoices" }

// InvoiceItem is a line on an invoice.
type InvoiceItem struct {
	ID          snowflake.ID    `json:"id,string" gorm:"primaryKey"`
	InvoiceID   snowflake.ID    `json:"invoice_id,string" gorm:"not null;index"`
	Description string          `json:"description" gorm:"type:text;not null"`
	Quantity    int64           `json:"quantity" gorm:"not null"`
	UnitAmount  decimal.Decimal `json:"unit_amount" gorm:"type:numeric(18,4);not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(18,4);not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

// InvoiceSequence holds the last issued sequence value for a number scope.
type InvoiceSequence struct {
	Scope     string    `gorm:"type:text;primaryKey"`
	LastValue int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (InvoiceSequence) TableName() string { return "invoice_sequences" }
