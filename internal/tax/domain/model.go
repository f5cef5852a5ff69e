package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RateSource string

const (
	RateSourceRule    RateSource = "rule"
	RateSourceDefault RateSource = "default"
	RateSourceExempt  RateSource = "exempt"
)

// TaxRule is the single active tax rate of a country, in percent.
type TaxRule struct {
	CountryCode string          `json:"country_code" gorm:"type:char(2);primaryKey;column:country_code"`
	Rate        decimal.Decimal `json:"rate" gorm:"type:numeric(5,2);not null"`
	Notes       string          `json:"notes" gorm:"type:text;not null;default:''"`
	UpdatedBy   *string         `json:"updated_by,omitempty" gorm:"type:text"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"not null"`
}

func (TaxRule) TableName() string { return "tax_rules" }

// Quote is an unpersisted tax computation over a subtotal.
type Quote struct {
	Subtotal       decimal.Decimal
	CountryCode    string
	CurrencyCode   string
	CurrencySymbol string
	Scale          int32
	TaxLabel       string
	TaxRate        decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
	IsExempt       bool
	RateSource     RateSource
}

// Breakdown is the display form of a Quote.
type Breakdown struct {
	Subtotal string `json:"subtotal"`
	TaxLabel string `json:"tax_label"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
	Currency string `json:"currency"`
}
