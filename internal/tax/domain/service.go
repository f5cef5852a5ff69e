package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type Calculator interface {
	Calculate(ctx context.Context, subtotal decimal.Decimal, countryCode string, isExempt bool) (Quote, error)
	FormatBreakdown(quote Quote, currencySymbol string) Breakdown
}

type Service interface {
	Calculator
	ListRules(ctx context.Context, countryCode string) ([]TaxRule, error)
	GetRule(ctx context.Context, countryCode string) (*TaxRule, error)
	UpdateRule(ctx context.Context, req UpdateRuleRequest) (*TaxRule, error)
	SeedDefaults(ctx context.Context) (int, error)
}

type UpdateRuleRequest struct {
	CountryCode string
	Rate        decimal.Decimal
	Notes       string
	ActorID     string
}
