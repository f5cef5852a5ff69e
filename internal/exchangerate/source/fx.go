package source

import (
	"github.com/smallbiznis/estate/internal/clock"
	"github.com/smallbiznis/estate/internal/config"
	"github.com/smallbiznis/estate/internal/exchangerate/domain"
)

// New selects the upstream: the HTTP endpoint when configured, otherwise the
// static table from the pricing config.
func New(cfg config.Config, pricing *config.PricingConfigHolder, clk clock.Clock) domain.Source {
	if cfg.RateSource.URL != "" {
		return NewHTTP(cfg.RateSource.URL, cfg.RateSource.Timeout, clk)
	}
	return NewStatic(pricing, clk)
}
