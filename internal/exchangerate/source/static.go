package source

import (
	"context"
	"strings"

	"github.com/smallbiznis/estate/internal/clock"
	"github.com/smallbiznis/estate/internal/config"
	"github.com/smallbiznis/estate/internal/exchangerate/domain"
)

// Static serves the rate table from the pricing config. It picks up config
// reloads on the next fetch.
type Static struct {
	pricing *config.PricingConfigHolder
	clock   clock.Clock
}

func NewStatic(pricing *config.PricingConfigHolder, clk clock.Clock) *Static {
	return &Static{pricing: pricing, clock: clk}
}

func (s *Static) Name() string { return "static" }

func (s *Static) Fetch(context.Context) (*domain.Snapshot, error) {
	cfg := s.pricing.Get()
	rates := cfg.ExchangeRates.StaticRates()
	if len(rates) == 0 {
		return nil, domain.ErrEmptySnapshot
	}
	return &domain.Snapshot{
		Base:      strings.ToUpper(strings.TrimSpace(cfg.BaseCurrency)),
		Source:    s.Name(),
		FetchedAt: s.clock.Now(),
		Rates:     rates,
	}, nil
}
