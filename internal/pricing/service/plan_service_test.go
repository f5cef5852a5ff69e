package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/estate/internal/audit/domain"
	auditrepo "github.com/smallbiznis/estate/internal/audit/repository"
	auditservice "github.com/smallbiznis/estate/internal/audit/service"
	"github.com/smallbiznis/estate/internal/clock"
	"github.com/smallbiznis/estate/internal/config"
	exchangeratedomain "github.com/smallbiznis/estate/internal/exchangerate/domain"
	pricingdomain "github.com/smallbiznis/estate/internal/pricing/domain"
	"github.com/smallbiznis/estate/internal/pricing/repository"
	"github.com/smallbiznis/estate/internal/reference"
	taxdomain "github.com/smallbiznis/estate/internal/tax/domain"
	taxrepo "github.com/smallbiznis/estate/internal/tax/repository"
	taxservice "github.com/smallbiznis/estate/internal/tax/service"
	"github.com/smallbiznis/estate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type planFixture struct {
	svc   *PlanService
	db    *gorm.DB
	clock *clock.FakeClock
	rates *staticRates
}

func newPlanFixture(t *testing.T) *planFixture {
	t.Helper()
	cfg := config.DefaultPricingConfig()
	registry, err := reference.BuildRegistry(cfg)
	require.NoError(t, err)

	db := testutil.OpenDB(t,
		&pricingdomain.Plan{},
		&pricingdomain.CountryPlanPrice{},
		&taxdomain.TaxRule{},
		&auditdomain.AuditLog{},
	)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	node := testutil.Node(t)

	tax := taxservice.NewService(taxservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    clk,
		Registry: registry,
		Pricing:  config.NewStaticPricingConfigHolder(cfg),
		Repo:     taxrepo.NewRepository(),
	})
	_, err = tax.SeedDefaults(context.Background())
	require.NoError(t, err)

	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
		Clock: clk,
	})

	rates := &staticRates{rates: map[string]string{"SAR": "3.75", "AED": "3.6725"}, at: clk.Now()}
	svc := NewPlanService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Registry: registry,
		Engine:   NewEngine(registry, rates),
		Tax:      tax,
		Repo:     repository.Provide(db),
		AuditSvc: audit,
	})
	return &planFixture{svc: svc, db: db, clock: clk, rates: rates}
}

func (f *planFixture) createPlan(t *testing.T, code, price string) *pricingdomain.Plan {
	t.Helper()
	plan, err := f.svc.CreatePlan(context.Background(), pricingdomain.CreatePlanRequest{
		Code:         code,
		Name:         code,
		Type:         pricingdomain.PlanTypeListing,
		BasePrice:    dec(price),
		BaseCurrency: "USD",
		DurationDays: 30,
	})
	require.NoError(t, err)
	return plan
}

func TestQuotePlanConvertsAndTaxes(t *testing.T) {
	f := newPlanFixture(t)
	plan := f.createPlan(t, "featured", "100")

	quote, err := f.svc.QuotePlan(context.Background(), pricingdomain.QuotePlanRequest{PlanID: plan.ID, CountryCode: "SA"})
	require.NoError(t, err)
	assert.Equal(t, pricingdomain.PriceSourceConverted, quote.PriceSource)
	assert.Equal(t, "375.00", quote.Pricing.Amount.StringFixed(2))
	assert.Equal(t, "56.25", quote.Tax.TaxAmount.StringFixed(2))
	assert.Equal(t, "431.25", quote.Tax.Total.StringFixed(2))
	assert.Equal(t, "VAT (15%)", quote.Breakdown.TaxLabel)
	assert.False(t, quote.Pricing.RateFallback)
}

func TestQuotePlanOverrideWins(t *testing.T) {
	f := newPlanFixture(t)
	plan := f.createPlan(t, "basic", "100")

	_, err := f.svc.UpsertCountryPrice(context.Background(), pricingdomain.UpsertCountryPriceRequest{
		PlanID: plan.ID, CountryCode: "AE", Price: dec("1000"),
	})
	require.NoError(t, err)

	quote, err := f.svc.QuotePlan(context.Background(), pricingdomain.QuotePlanRequest{PlanID: plan.ID, CountryCode: "ae"})
	require.NoError(t, err)
	assert.Equal(t, pricingdomain.PriceSourceOverride, quote.PriceSource)
	assert.Equal(t, "1000.00", quote.Pricing.Amount.StringFixed(2))
	assert.Equal(t, "50.00", quote.Tax.TaxAmount.StringFixed(2))
	assert.Equal(t, "1050.00", quote.Tax.Total.StringFixed(2))
}

func TestQuotePlanExempt(t *testing.T) {
	f := newPlanFixture(t)
	plan := f.createPlan(t, "exempt", "100")

	quote, err := f.svc.QuotePlan(context.Background(), pricingdomain.QuotePlanRequest{PlanID: plan.ID, CountryCode: "SA", IsTaxExempt: true})
	require.NoError(t, err)
	assert.True(t, quote.Tax.TaxAmount.IsZero())
	assert.True(t, quote.Tax.Total.Equal(quote.Pricing.Amount))
}

func TestQuotePlanMissingRateThenAtRate(t *testing.T) {
	f := newPlanFixture(t)
	plan := f.createPlan(t, "egypt", "10")

	_, err := f.svc.QuotePlan(context.Background(), pricingdomain.QuotePlanRequest{PlanID: plan.ID, CountryCode: "EG"})
	require.ErrorIs(t, err, exchangeratedomain.ErrRateUnavailable)

	quote, err := f.svc.QuotePlanAtRate(context.Background(), pricingdomain.QuotePlanRequest{PlanID: plan.ID, CountryCode: "EG"}, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, quote.Pricing.RateFallback)
	assert.Equal(t, "10.00", quote.Pricing.Amount.StringFixed(2))
	assert.Equal(t, "EGP", quote.Pricing.CurrencyCode)
}

func TestQuotePlanUnknownPlan(t *testing.T) {
	f := newPlanFixture(t)

	_, err := f.svc.QuotePlan(context.Background(), pricingdomain.QuotePlanRequest{PlanID: snowflake.ID(42), CountryCode: "SA"})
	assert.ErrorIs(t, err, pricingdomain.ErrPlanNotFound)
}

func TestCreatePlanValidation(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreatePlan(ctx, pricingdomain.CreatePlanRequest{Code: "x", Name: "x", Type: "other", BasePrice: dec("1"), BaseCurrency: "USD", DurationDays: 1})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidPlan)

	_, err = f.svc.CreatePlan(ctx, pricingdomain.CreatePlanRequest{Code: "x", Name: "x", Type: pricingdomain.PlanTypeListing, BasePrice: dec("0"), BaseCurrency: "USD", DurationDays: 1})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidPrice)

	f.createPlan(t, "dup", "5")
	_, err = f.svc.CreatePlan(ctx, pricingdomain.CreatePlanRequest{Code: "dup", Name: "dup", Type: pricingdomain.PlanTypeListing, BasePrice: dec("5"), BaseCurrency: "USD", DurationDays: 1})
	assert.ErrorIs(t, err, pricingdomain.ErrPlanCodeTaken)
}

func TestUpsertCountryPriceValidatesAndAudits(t *testing.T) {
	f := newPlanFixture(t)
	plan := f.createPlan(t, "kw", "10")
	ctx := context.Background()

	_, err := f.svc.UpsertCountryPrice(ctx, pricingdomain.UpsertCountryPriceRequest{PlanID: plan.ID, CountryCode: "KW", Price: dec("0")})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidPrice)

	stored, err := f.svc.UpsertCountryPrice(ctx, pricingdomain.UpsertCountryPriceRequest{PlanID: plan.ID, CountryCode: "KW", Price: dec("3.0705")})
	require.NoError(t, err)
	assert.Equal(t, "KWD", stored.CurrencyCode)
	assert.Equal(t, "3.07", stored.Price.StringFixed(2))

	stored, err = f.svc.UpsertCountryPrice(ctx, pricingdomain.UpsertCountryPriceRequest{PlanID: plan.ID, CountryCode: "KW", Price: dec("4")})
	require.NoError(t, err)
	assert.True(t, stored.Price.Equal(dec("4")))

	prices, err := f.svc.ListCountryPrices(ctx, plan.ID)
	require.NoError(t, err)
	assert.Len(t, prices, 1)

	var count int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("action = ?", auditdomain.ActionPlanPriceUpsert).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestReorderPlansIsAtomic(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()
	a := f.createPlan(t, "a", "1")
	b := f.createPlan(t, "b", "2")
	c := f.createPlan(t, "c", "3")

	require.NoError(t, f.svc.ReorderPlans(ctx, []snowflake.ID{c.ID, a.ID, b.ID}))
	plans, err := f.svc.ListPlans(ctx, true)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{plans[0].Code, plans[1].Code, plans[2].Code})

	err = f.svc.ReorderPlans(ctx, []snowflake.ID{b.ID, snowflake.ID(999), a.ID})
	assert.ErrorIs(t, err, pricingdomain.ErrPlanNotFound)

	var stored pricingdomain.Plan
	require.NoError(t, f.db.First(&stored, "id = ?", b.ID).Error)
	assert.Equal(t, 3, stored.SortOrder)

	assert.ErrorIs(t, f.svc.ReorderPlans(ctx, []snowflake.ID{a.ID, a.ID}), pricingdomain.ErrInvalidOrder)
	assert.ErrorIs(t, f.svc.ReorderPlans(ctx, nil), pricingdomain.ErrInvalidOrder)
}

func TestListPlansIsCached(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()
	f.createPlan(t, "one", "1")

	plans, err := f.svc.ListPlans(ctx, true)
	require.NoError(t, err)
	require.Len(t, plans, 1)

	require.NoError(t, f.db.Exec("UPDATE plans SET name = ?", "renamed").Error)
	plans, err = f.svc.ListPlans(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "one", plans[0].Name)

	f.clock.Advance(2 * time.Minute)
	plans, err = f.svc.ListPlans(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "renamed", plans[0].Name)
}
