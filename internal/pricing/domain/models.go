package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PlanType string

const (
	PlanTypeSubscription PlanType = "subscription"
	PlanTypeListing      PlanType = "listing"
)

func (t PlanType) Valid() bool {
	return t == PlanTypeSubscription || t == PlanTypeListing
}

type Plan struct {
	ID           snowflake.ID    `json:"id,string" gorm:"primaryKey"`
	Code         string          `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name         string          `json:"name" gorm:"type:text;not null"`
	Type         PlanType        `json:"type" gorm:"type:text;not null"`
	BasePrice    decimal.Decimal `json:"base_price" gorm:"type:numeric(18,4);not null"`
	BaseCurrency string          `json:"base_currency" gorm:"type:char(3);not null"`
	DurationDays int             `json:"duration_days" gorm:"not null;default:30"`
	SortOrder    int             `json:"sort_order" gorm:"not null;default:0"`
	Active       bool            `json:"active" gorm:"not null"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"not null"`
}

func (Plan) TableName() string { return "plans" }

// CountryPlanPrice overrides the converted price of a plan in one country.
type CountryPlanPrice struct {
	ID           snowflake.ID    `json:"id,string" gorm:"primaryKey"`
	PlanID       snowflake.ID    `json:"plan_id,string" gorm:"not null;uniqueIndex:ux_country_plan_price,priority:1"`
	CountryCode  string          `json:"country_code" gorm:"type:char(2);not null;uniqueIndex:ux_country_plan_price,priority:2"`
	CurrencyCode string          `json:"currency_code" gorm:"type:char(3);not null"`
	Price        decimal.Decimal `json:"price" gorm:"type:numeric(18,4);not null"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"not null"`
}

func (CountryPlanPrice) TableName() string { return "country_plan_prices" }

// LocalPrice is an amount converted into a country's currency.
type LocalPrice struct {
	Amount         decimal.Decimal
	CurrencyCode   string
	CurrencySymbol string
	Scale          int32
	Rate           decimal.Decimal
	RateUpdatedAt  time.Time
	Stale          bool
	RateFallback   bool
}

type PriceSource string

const (
	PriceSourceOverride  PriceSource = "override"
	PriceSourceConverted PriceSource = "converted"
)
