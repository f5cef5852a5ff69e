package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/estate/internal/tax/domain"
)

type Engine interface {
	LocalPrice(ctx context.Context, amount decimal.Decimal, baseCurrency, countryCode string) (LocalPrice, error)
	LocalPriceAtRate(amount decimal.Decimal, baseCurrency, countryCode string, rate decimal.Decimal) (LocalPrice, error)
}

type PlanService interface {
	ListPlans(ctx context.Context, activeOnly bool) ([]Plan, error)
	GetPlan(ctx context.Context, id snowflake.ID) (*Plan, error)
	CreatePlan(ctx context.Context, req CreatePlanRequest) (*Plan, error)
	QuotePlan(ctx context.Context, req QuotePlanRequest) (*PlanQuote, error)
	QuotePlanAtRate(ctx context.Context, req QuotePlanRequest, rate decimal.Decimal) (*PlanQuote, error)
	UpsertCountryPrice(ctx context.Context, req UpsertCountryPriceRequest) (*CountryPlanPrice, error)
	ListCountryPrices(ctx context.Context, planID snowflake.ID) ([]CountryPlanPrice, error)
	ReorderPlans(ctx context.Context, ids []snowflake.ID) error
}

type CreatePlanRequest struct {
	Code         string
	Name         string
	Type         PlanType
	BasePrice    decimal.Decimal
	BaseCurrency string
	DurationDays int
}

type QuotePlanRequest struct {
	PlanID      snowflake.ID
	CountryCode string
	IsTaxExempt bool
}

type PlanQuote struct {
	Plan        Plan
	Pricing     LocalPrice
	PriceSource PriceSource
	Tax         taxdomain.Quote
	Breakdown   taxdomain.Breakdown
}

type UpsertCountryPriceRequest struct {
	PlanID      snowflake.ID
	CountryCode string
	Price       decimal.Decimal
}
