package domain

import "time"

type TaxCategory string

const (
	TaxCategoryVAT      TaxCategory = "vat"
	TaxCategorySalesTax TaxCategory = "sales_tax"
	TaxCategoryNone     TaxCategory = "none"
)

// CountryProfile describes the currency and tax treatment of a country.
type CountryProfile struct {
	Code           string      `json:"code" gorm:"type:char(2);primaryKey;column:code"`
	Name           string      `json:"name" gorm:"type:text;not null"`
	LocalName      string      `json:"local_name" gorm:"type:text;not null"`
	CurrencyCode   string      `json:"currency_code" gorm:"type:char(3);not null"`
	CurrencySymbol string      `json:"currency_symbol" gorm:"type:text;not null"`
	TaxCategory    TaxCategory `json:"tax_category" gorm:"type:text;not null"`
	UpdatedAt      time.Time   `json:"-" gorm:"not null"`
}

func (CountryProfile) TableName() string { return "countries" }

type Currency struct {
	Code      string    `json:"code" gorm:"type:char(3);primaryKey;column:code"`
	Name      string    `json:"name" gorm:"type:text;not null"`
	Symbol    string    `json:"symbol" gorm:"type:text;not null"`
	MinorUnit int32     `json:"minor_unit" gorm:"type:smallint;not null"`
	UpdatedAt time.Time `json:"-" gorm:"not null"`
}

func (Currency) TableName() string { return "currencies" }

// Scale is the number of decimal places amounts in this currency are rounded to.
// Currencies without a minor unit round to whole units; all others to cents.
func (c Currency) Scale() int32 {
	if c.MinorUnit == 0 {
		return 0
	}
	return 2
}
