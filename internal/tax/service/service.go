package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/estate/internal/audit/domain"
	"github.com/smallbiznis/estate/internal/cache"
	"github.com/smallbiznis/estate/internal/clock"
	"github.com/smallbiznis/estate/internal/config"
	"github.com/smallbiznis/estate/internal/reference"
	refdomain "github.com/smallbiznis/estate/internal/reference/domain"
	taxdomain "github.com/smallbiznis/estate/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const ruleCacheTTL = 5 * time.Minute

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Registry *reference.Registry
	Pricing  *config.PricingConfigHolder
	Repo     taxdomain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
	Redis    *redis.Client        `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	registry *reference.Registry
	pricing  *config.PricingConfigHolder
	repo     taxdomain.Repository
	auditSvc auditdomain.Service
	rules    cache.Cache[string, *taxdomain.TaxRule]
	redis    *redis.Client
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("tax.service"),
		clock:    p.Clock,
		registry: p.Registry,
		pricing:  p.Pricing,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		rules:    cache.NewTTLCacheWithClock[string, *taxdomain.TaxRule](p.Clock),
		redis:    p.Redis,
	}
}

// Calculate computes tax over subtotal for the country. The subtotal is used
// as given; only the tax amount is rounded, half-up to the currency scale.
func (s *Service) Calculate(ctx context.Context, subtotal decimal.Decimal, countryCode string, isExempt bool) (taxdomain.Quote, error) {
	if subtotal.IsNegative() {
		return taxdomain.Quote{}, taxdomain.ErrInvalidAmount
	}
	country, currency, err := s.registry.CountryCurrency(countryCode)
	if err != nil {
		return taxdomain.Quote{}, err
	}

	quote := taxdomain.Quote{
		Subtotal:       subtotal,
		CountryCode:    country.Code,
		CurrencyCode:   currency.Code,
		CurrencySymbol: currency.Symbol,
		Scale:          currency.Scale(),
		TaxLabel:       taxLabel(country.TaxCategory),
		IsExempt:       isExempt,
	}

	if isExempt {
		quote.TaxRate = decimal.Zero
		quote.TaxAmount = decimal.Zero
		quote.Total = subtotal
		quote.RateSource = taxdomain.RateSourceExempt
		return quote, nil
	}

	rate, source, err := s.rateFor(ctx, country.Code)
	if err != nil {
		return taxdomain.Quote{}, err
	}
	quote.TaxRate = rate
	quote.RateSource = source
	quote.TaxAmount = ComputeTax(subtotal, rate, quote.Scale)
	quote.Total = subtotal.Add(quote.TaxAmount)
	return quote, nil
}

// ComputeTax returns round(subtotal × rate / 100) at scale, rounding half away
// from zero.
func ComputeTax(subtotal, ratePercent decimal.Decimal, scale int32) decimal.Decimal {
	if !ratePercent.IsPositive() || subtotal.IsZero() {
		return decimal.Zero
	}
	return subtotal.Mul(ratePercent).Div(hundred).Round(scale)
}

func (s *Service) rateFor(ctx context.Context, countryCode string) (decimal.Decimal, taxdomain.RateSource, error) {
	rule, err := s.lookupRule(ctx, countryCode)
	if err != nil {
		return decimal.Zero, "", err
	}
	if rule != nil {
		return rule.Rate, taxdomain.RateSourceRule, nil
	}
	return s.pricing.Get().DefaultTaxRateDecimal(), taxdomain.RateSourceDefault, nil
}

func (s *Service) lookupRule(ctx context.Context, countryCode string) (*taxdomain.TaxRule, error) {
	key := cache.Key("tax_rule", countryCode)
	if rule, ok := s.rules.Get(key); ok {
		return rule, nil
	}
	rule, err := s.repo.FindByCountry(ctx, s.db, countryCode)
	if err != nil {
		return nil, err
	}
	// Absent rules are cached too so the default rate path stays off the DB.
	s.rules.Set(key, rule, ruleCacheTTL)
	return rule, nil
}

func (s *Service) ListRules(ctx context.Context, countryCode string) ([]taxdomain.TaxRule, error) {
	code := strings.ToUpper(strings.TrimSpace(countryCode))
	if code != "" && !s.registry.IsCountry(code) {
		return nil, refdomain.ErrUnsupportedCountry
	}
	return s.repo.List(ctx, s.db, code)
}

func (s *Service) GetRule(ctx context.Context, countryCode string) (*taxdomain.TaxRule, error) {
	country, err := s.registry.Country(countryCode)
	if err != nil {
		return nil, err
	}
	rule, err := s.repo.FindByCountry(ctx, s.db, country.Code)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, taxdomain.ErrNotFound
	}
	return rule, nil
}

func (s *Service) UpdateRule(ctx context.Context, req taxdomain.UpdateRuleRequest) (*taxdomain.TaxRule, error) {
	country, err := s.registry.Country(req.CountryCode)
	if err != nil {
		return nil, err
	}
	if err := ValidateRate(req.Rate); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rule := &taxdomain.TaxRule{
		CountryCode: country.Code,
		Rate:        req.Rate.Round(2),
		Notes:       strings.TrimSpace(req.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if actor := strings.TrimSpace(req.ActorID); actor != "" {
		rule.UpdatedBy = &actor
	}

	if err := s.repo.Upsert(ctx, s.db, rule); err != nil {
		return nil, fmt.Errorf("upsert tax rule %s: %w", country.Code, err)
	}
	s.rules.Delete(cache.Key("tax_rule", country.Code))
	s.broadcastInvalidation(ctx, country.Code)

	stored, err := s.repo.FindByCountry(ctx, s.db, country.Code)
	if err != nil {
		return nil, err
	}

	if s.auditSvc != nil {
		targetID := country.Code
		_ = s.auditSvc.AuditLog(ctx, "", nil, auditdomain.ActionTaxRuleUpdate, "tax_rule", &targetID, map[string]any{
			"rate":  rule.Rate.String(),
			"notes": rule.Notes,
		})
	}
	s.log.Info("tax rule updated", zap.String("country_code", country.Code), zap.String("rate", rule.Rate.String()))
	return stored, nil
}

// SeedDefaults inserts the configured default rules for countries that have
// none. Existing rules are never overwritten.
func (s *Service) SeedDefaults(ctx context.Context) (int, error) {
	now := s.clock.Now()
	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range s.pricing.Get().DefaultTaxRules {
			country, err := s.registry.Country(item.Country)
			if err != nil {
				s.log.Warn("skipping default tax rule for unsupported country", zap.String("country_code", item.Country))
				continue
			}
			rate, err := decimal.NewFromString(strings.TrimSpace(item.Rate))
			if err != nil || ValidateRate(rate) != nil {
				s.log.Warn("skipping invalid default tax rule", zap.String("country_code", country.Code), zap.String("rate", item.Rate))
				continue
			}
			ok, err := s.repo.InsertIfAbsent(ctx, tx, &taxdomain.TaxRule{
				CountryCode: country.Code,
				Rate:        rate,
				Notes:       item.Notes,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			if err != nil {
				return err
			}
			if ok {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.rules.Purge()
	return inserted, nil
}

func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return taxdomain.ErrInvalidRate
	}
	return nil
}

func taxLabel(category refdomain.TaxCategory) string {
	switch category {
	case refdomain.TaxCategoryVAT:
		return "VAT"
	case refdomain.TaxCategorySalesTax:
		return "Sales tax"
	default:
		return "Tax"
	}
}

var _ taxdomain.Service = (*Service)(nil)
