package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is one row of the last-known-good snapshot. Rate is units of
// CurrencyCode per one unit of the base currency.
type ExchangeRate struct {
	CurrencyCode string          `json:"currency_code" gorm:"type:char(3);primaryKey;column:currency_code"`
	BaseCurrency string          `json:"base_currency" gorm:"type:char(3);not null"`
	Rate         decimal.Decimal `json:"rate" gorm:"type:numeric(20,8);not null"`
	Source       string          `json:"source" gorm:"type:text;not null"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"not null"`
}

func (ExchangeRate) TableName() string { return "exchange_rates" }

// Snapshot is a complete rate table fetched at one instant.
type Snapshot struct {
	Base      string                     `json:"base"`
	Source    string                     `json:"source"`
	FetchedAt time.Time                  `json:"fetched_at"`
	Rates     map[string]decimal.Decimal `json:"rates"`
}

func (s *Snapshot) Age(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	return now.Sub(s.FetchedAt)
}

// Quote is the rate for one currency as served to the pricing engine.
type Quote struct {
	Currency  string
	Rate      decimal.Decimal
	UpdatedAt time.Time
	Stale     bool
}
