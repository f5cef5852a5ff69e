package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/estate/internal/clock"
	"github.com/smallbiznis/estate/internal/config"
	"github.com/smallbiznis/estate/internal/reference"
	refdomain "github.com/smallbiznis/estate/internal/reference/domain"
	taxdomain "github.com/smallbiznis/estate/internal/tax/domain"
	"github.com/smallbiznis/estate/internal/tax/repository"
	"github.com/smallbiznis/estate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newTestService(t *testing.T, mutate func(*config.PricingConfig)) *Service {
	t.Helper()
	cfg := config.DefaultPricingConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	registry, err := reference.BuildRegistry(cfg)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:       testutil.OpenDB(t, &taxdomain.TaxRule{}),
		Log:      zap.NewNop(),
		Clock:    clock.NewFakeClock(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)),
		Registry: registry,
		Pricing:  config.NewStaticPricingConfigHolder(cfg),
		Repo:     repository.NewRepository(),
	})
	_, err = svc.SeedDefaults(context.Background())
	require.NoError(t, err)
	return svc
}

func TestCalculateUAEStandardRate(t *testing.T) {
	svc := newTestService(t, nil)

	quote, err := svc.Calculate(context.Background(), dec("1000.00"), "AE", false)
	require.NoError(t, err)
	assert.Equal(t, "AED", quote.CurrencyCode)
	assert.Equal(t, "5", quote.TaxRate.String())
	assert.Equal(t, "50.00", quote.TaxAmount.StringFixed(2))
	assert.Equal(t, "1050.00", quote.Total.StringFixed(2))
	assert.Equal(t, taxdomain.RateSourceRule, quote.RateSource)
}

func TestCalculateExemptIgnoresStoredRate(t *testing.T) {
	svc := newTestService(t, nil)

	quote, err := svc.Calculate(context.Background(), dec("250"), "SA", true)
	require.NoError(t, err)
	assert.True(t, quote.TaxAmount.IsZero())
	assert.True(t, quote.TaxRate.IsZero())
	assert.True(t, quote.Total.Equal(dec("250")))
	assert.Equal(t, taxdomain.RateSourceExempt, quote.RateSource)
}

func TestCalculateTotalsHoldForEveryCountry(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	subtotals := []string{"0.01", "1", "99.99", "1234.56", "1000000"}

	for _, country := range svc.registry.Countries() {
		for _, raw := range subtotals {
			s := dec(raw)
			quote, err := svc.Calculate(ctx, s, country.Code, false)
			require.NoError(t, err)
			assert.True(t, quote.Total.Equal(s.Add(quote.TaxAmount)), "%s %s", country.Code, raw)

			exempt, err := svc.Calculate(ctx, s, country.Code, true)
			require.NoError(t, err)
			assert.True(t, exempt.Total.Equal(s), "%s %s exempt", country.Code, raw)
		}
	}
}

func TestCalculateFallsBackToDefaultRate(t *testing.T) {
	svc := newTestService(t, func(cfg *config.PricingConfig) { cfg.DefaultTaxRate = "2.5" })

	quote, err := svc.Calculate(context.Background(), dec("100"), "KW", false)
	require.NoError(t, err)
	assert.Equal(t, taxdomain.RateSourceDefault, quote.RateSource)
	assert.Equal(t, "2.50", quote.TaxAmount.StringFixed(2))
}

func TestCalculateZeroDecimalCurrencyRoundsTaxToWholeUnits(t *testing.T) {
	svc := newTestService(t, nil)

	quote, err := svc.Calculate(context.Background(), dec("1005"), "JP", false)
	require.NoError(t, err)
	assert.Equal(t, int32(0), quote.Scale)
	assert.Equal(t, "101", quote.TaxAmount.String())
}

func TestCalculateRejectsUnsupportedCountryAndNegativeAmount(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Calculate(ctx, dec("10"), "ZZ", false)
	assert.ErrorIs(t, err, refdomain.ErrUnsupportedCountry)

	_, err = svc.Calculate(ctx, dec("-1"), "SA", false)
	assert.ErrorIs(t, err, taxdomain.ErrInvalidAmount)
}

func TestUpdateRuleValidatesRange(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	for _, raw := range []string{"-0.01", "100.01"} {
		_, err := svc.UpdateRule(ctx, taxdomain.UpdateRuleRequest{CountryCode: "SA", Rate: dec(raw)})
		assert.ErrorIs(t, err, taxdomain.ErrInvalidRate, raw)
	}
	for _, raw := range []string{"0", "100"} {
		_, err := svc.UpdateRule(ctx, taxdomain.UpdateRuleRequest{CountryCode: "SA", Rate: dec(raw)})
		assert.NoError(t, err, raw)
	}

	_, err := svc.UpdateRule(ctx, taxdomain.UpdateRuleRequest{CountryCode: "XX", Rate: dec("5")})
	assert.ErrorIs(t, err, refdomain.ErrUnsupportedCountry)
}

func TestUpdateRuleUpsertsAndInvalidatesCache(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	before, err := svc.Calculate(ctx, dec("100"), "QA", false)
	require.NoError(t, err)
	assert.Equal(t, taxdomain.RateSourceDefault, before.RateSource)

	rule, err := svc.UpdateRule(ctx, taxdomain.UpdateRuleRequest{CountryCode: "qa", Rate: dec("5"), Notes: "VAT introduced", ActorID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "QA", rule.CountryCode)
	assert.Equal(t, "VAT introduced", rule.Notes)

	after, err := svc.Calculate(ctx, dec("100"), "QA", false)
	require.NoError(t, err)
	assert.Equal(t, "5.00", after.TaxAmount.StringFixed(2))

	_, err = svc.UpdateRule(ctx, taxdomain.UpdateRuleRequest{CountryCode: "QA", Rate: dec("7")})
	require.NoError(t, err)
	rules, err := svc.ListRules(ctx, "QA")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "7", rules[0].Rate.String())
}

func TestSeedDefaultsDoesNotOverwrite(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.UpdateRule(ctx, taxdomain.UpdateRuleRequest{CountryCode: "SA", Rate: dec("16")})
	require.NoError(t, err)

	inserted, err := svc.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Zero(t, inserted)

	rule, err := svc.GetRule(ctx, "SA")
	require.NoError(t, err)
	assert.Equal(t, "16", rule.Rate.String())
}

func TestGetRuleNotFound(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.GetRule(context.Background(), "KW")
	assert.ErrorIs(t, err, taxdomain.ErrNotFound)
}

func TestUpdateRuleInvalidatesOtherReplicas(t *testing.T) {
	cfg := config.DefaultPricingConfig()
	registry, err := reference.BuildRegistry(cfg)
	require.NoError(t, err)
	db := testutil.OpenDB(t, &taxdomain.TaxRule{})
	srv := miniredis.RunT(t)

	replica := func() *Service {
		client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return NewService(Params{
			DB:       db,
			Log:      zap.NewNop(),
			Clock:    clock.NewFakeClock(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)),
			Registry: registry,
			Pricing:  config.NewStaticPricingConfigHolder(cfg),
			Repo:     repository.NewRepository(),
			Redis:    client,
		})
	}
	writer, reader := replica(), replica()
	ctx := context.Background()
	_, err = writer.SeedDefaults(ctx)
	require.NoError(t, err)

	stop, err := reader.ListenForInvalidations(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stop() })

	quote, err := reader.Calculate(ctx, dec("100"), "SA", false)
	require.NoError(t, err)
	assert.Equal(t, "15.00", quote.TaxAmount.StringFixed(2))

	_, err = writer.UpdateRule(ctx, taxdomain.UpdateRuleRequest{CountryCode: "SA", Rate: dec("16")})
	require.NoError(t, err)

	// the fake clock never advances, so only the broadcast can clear the cached rule
	assert.Eventually(t, func() bool {
		quote, err := reader.Calculate(ctx, dec("100"), "SA", false)
		return err == nil && quote.TaxAmount.Equal(dec("16"))
	}, 2*time.Second, 10*time.Millisecond)
}

func TestListenForInvalidationsWithoutRedis(t *testing.T) {
	svc := newTestService(t, nil)
	stop, err := svc.ListenForInvalidations(context.Background())
	require.NoError(t, err)
	assert.NoError(t, stop())
}
