package service

import (
	"context"

	"github.com/shopspring/decimal"
	exchangeratedomain "github.com/smallbiznis/estate/internal/exchangerate/domain"
	pricingdomain "github.com/smallbiznis/estate/internal/pricing/domain"
	"github.com/smallbiznis/estate/internal/reference"
)

var one = decimal.NewFromInt(1)

// Engine converts base-currency amounts into a country's local currency.
// It never substitutes a rate: a missing rate is returned as an error.
type Engine struct {
	registry *reference.Registry
	rates    exchangeratedomain.Provider
}

func NewEngine(registry *reference.Registry, rates exchangeratedomain.Provider) *Engine {
	return &Engine{registry: registry, rates: rates}
}

func (e *Engine) LocalPrice(ctx context.Context, amount decimal.Decimal, baseCurrency, countryCode string) (pricingdomain.LocalPrice, error) {
	if amount.IsNegative() {
		return pricingdomain.LocalPrice{}, pricingdomain.ErrInvalidAmount
	}
	country, target, err := e.registry.CountryCurrency(countryCode)
	if err != nil {
		return pricingdomain.LocalPrice{}, err
	}
	source, err := e.registry.Currency(baseCurrency)
	if err != nil {
		return pricingdomain.LocalPrice{}, err
	}

	price := pricingdomain.LocalPrice{
		CurrencyCode:   target.Code,
		CurrencySymbol: country.CurrencySymbol,
		Scale:          target.Scale(),
	}
	if source.Code == target.Code {
		price.Rate = one
		price.Amount = RoundAmount(amount, price.Scale)
		return price, nil
	}

	from, err := e.rates.Rate(ctx, source.Code)
	if err != nil {
		return pricingdomain.LocalPrice{}, err
	}
	to, err := e.rates.Rate(ctx, target.Code)
	if err != nil {
		return pricingdomain.LocalPrice{}, err
	}

	// Both rates are quoted against the provider base; convert through it
	// without rounding the intermediate value.
	price.Amount = amount.Mul(to.Rate).Div(from.Rate).Round(price.Scale)
	price.Rate = to.Rate.DivRound(from.Rate, 8)
	price.Stale = from.Stale || to.Stale
	price.RateUpdatedAt = to.UpdatedAt
	if !from.UpdatedAt.IsZero() && from.UpdatedAt.Before(to.UpdatedAt) {
		price.RateUpdatedAt = from.UpdatedAt
	}
	return price, nil
}

// LocalPriceAtRate converts with an explicitly supplied rate.
func (e *Engine) LocalPriceAtRate(amount decimal.Decimal, baseCurrency, countryCode string, rate decimal.Decimal) (pricingdomain.LocalPrice, error) {
	if amount.IsNegative() {
		return pricingdomain.LocalPrice{}, pricingdomain.ErrInvalidAmount
	}
	if !rate.IsPositive() {
		return pricingdomain.LocalPrice{}, exchangeratedomain.ErrRateUnavailable
	}
	country, target, err := e.registry.CountryCurrency(countryCode)
	if err != nil {
		return pricingdomain.LocalPrice{}, err
	}
	if _, err := e.registry.Currency(baseCurrency); err != nil {
		return pricingdomain.LocalPrice{}, err
	}
	return pricingdomain.LocalPrice{
		Amount:         Convert(amount, rate, target.Scale()),
		CurrencyCode:   target.Code,
		CurrencySymbol: country.CurrencySymbol,
		Scale:          target.Scale(),
		Rate:           rate,
	}, nil
}

// Convert multiplies amount by rate and rounds half-up at scale.
func Convert(amount, rate decimal.Decimal, scale int32) decimal.Decimal {
	return RoundAmount(amount.Mul(rate), scale)
}

// RoundAmount rounds half away from zero; for the non-negative amounts
// priced here that is round-half-up.
func RoundAmount(v decimal.Decimal, scale int32) decimal.Decimal {
	return v.Round(scale)
}

var _ pricingdomain.Engine = (*Engine)(nil)
