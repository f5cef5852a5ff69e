package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/estate/internal/audit/domain"
	"github.com/smallbiznis/estate/internal/cache"
	"github.com/smallbiznis/estate/internal/clock"
	pricingdomain "github.com/smallbiznis/estate/internal/pricing/domain"
	"github.com/smallbiznis/estate/internal/pricing/repository"
	"github.com/smallbiznis/estate/internal/reference"
	taxdomain "github.com/smallbiznis/estate/internal/tax/domain"
	"github.com/smallbiznis/estate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const planCacheTTL = time.Minute

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Registry *reference.Registry
	Engine   pricingdomain.Engine
	Tax      taxdomain.Calculator
	Repo     repository.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type PlanService struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	registry *reference.Registry
	engine   pricingdomain.Engine
	tax      taxdomain.Calculator
	repo     repository.Repository
	auditSvc auditdomain.Service
	plans    cache.Cache[string, []pricingdomain.Plan]
}

func NewPlanService(p Params) *PlanService {
	return &PlanService{
		db:       p.DB,
		log:      p.Log.Named("pricing.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		registry: p.Registry,
		engine:   p.Engine,
		tax:      p.Tax,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		plans:    cache.NewTTLCacheWithClock[string, []pricingdomain.Plan](p.Clock),
	}
}

func (s *PlanService) ListPlans(ctx context.Context, activeOnly bool) ([]pricingdomain.Plan, error) {
	key := cache.Key("plans", fmt.Sprint(activeOnly))
	if plans, ok := s.plans.Get(key); ok {
		return plans, nil
	}

	rows, err := s.repo.ListPlans(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	plans := make([]pricingdomain.Plan, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			plans = append(plans, *row)
		}
	}
	s.plans.Set(key, plans, planCacheTTL)
	return plans, nil
}

func (s *PlanService) GetPlan(ctx context.Context, id snowflake.ID) (*pricingdomain.Plan, error) {
	if id == 0 {
		return nil, pricingdomain.ErrPlanNotFound
	}
	plan, err := s.repo.FindPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, pricingdomain.ErrPlanNotFound
	}
	return plan, nil
}

func (s *PlanService) CreatePlan(ctx context.Context, req pricingdomain.CreatePlanRequest) (*pricingdomain.Plan, error) {
	code := strings.TrimSpace(req.Code)
	name := strings.TrimSpace(req.Name)
	if code == "" || name == "" || !req.Type.Valid() || req.DurationDays <= 0 {
		return nil, pricingdomain.ErrInvalidPlan
	}
	if !req.BasePrice.IsPositive() {
		return nil, pricingdomain.ErrInvalidPrice
	}
	currency, err := s.registry.Currency(req.BaseCurrency)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	plan := &pricingdomain.Plan{
		ID:           s.genID.Generate(),
		Code:         code,
		Name:         name,
		Type:         req.Type,
		BasePrice:    req.BasePrice,
		BaseCurrency: currency.Code,
		DurationDays: req.DurationDays,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreatePlan(ctx, plan); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, pricingdomain.ErrPlanCodeTaken
		}
		return nil, fmt.Errorf("create plan: %w", err)
	}
	s.plans.Purge()
	return plan, nil
}

// QuotePlan prices a plan in the country's currency and computes tax on the
// local amount. A country override wins over conversion.
func (s *PlanService) QuotePlan(ctx context.Context, req pricingdomain.QuotePlanRequest) (*pricingdomain.PlanQuote, error) {
	return s.quote(ctx, req, func(plan *pricingdomain.Plan) (pricingdomain.LocalPrice, error) {
		return s.engine.LocalPrice(ctx, plan.BasePrice, plan.BaseCurrency, req.CountryCode)
	})
}

// QuotePlanAtRate is QuotePlan with the conversion rate supplied by the
// caller. The returned price is marked as a rate fallback.
func (s *PlanService) QuotePlanAtRate(ctx context.Context, req pricingdomain.QuotePlanRequest, rate decimal.Decimal) (*pricingdomain.PlanQuote, error) {
	return s.quote(ctx, req, func(plan *pricingdomain.Plan) (pricingdomain.LocalPrice, error) {
		price, err := s.engine.LocalPriceAtRate(plan.BasePrice, plan.BaseCurrency, req.CountryCode, rate)
		if err != nil {
			return pricingdomain.LocalPrice{}, err
		}
		price.RateFallback = true
		return price, nil
	})
}

func (s *PlanService) quote(ctx context.Context, req pricingdomain.QuotePlanRequest, convert func(*pricingdomain.Plan) (pricingdomain.LocalPrice, error)) (*pricingdomain.PlanQuote, error) {
	plan, err := s.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, pricingdomain.ErrPlanNotFound
	}
	country, currency, err := s.registry.CountryCurrency(req.CountryCode)
	if err != nil {
		return nil, err
	}

	override, err := s.repo.FindCountryPrice(ctx, plan.ID, country.Code)
	if err != nil {
		return nil, err
	}

	var (
		price  pricingdomain.LocalPrice
		source pricingdomain.PriceSource
	)
	if override != nil {
		source = pricingdomain.PriceSourceOverride
		price = pricingdomain.LocalPrice{
			Amount:         RoundAmount(override.Price, currency.Scale()),
			CurrencyCode:   currency.Code,
			CurrencySymbol: country.CurrencySymbol,
			Scale:          currency.Scale(),
			RateUpdatedAt:  override.UpdatedAt,
		}
	} else {
		source = pricingdomain.PriceSourceConverted
		price, err = convert(plan)
		if err != nil {
			return nil, err
		}
	}

	taxQuote, err := s.tax.Calculate(ctx, price.Amount, country.Code, req.IsTaxExempt)
	if err != nil {
		return nil, err
	}

	return &pricingdomain.PlanQuote{
		Plan:        *plan,
		Pricing:     price,
		PriceSource: source,
		Tax:         taxQuote,
		Breakdown:   s.tax.FormatBreakdown(taxQuote, price.CurrencySymbol),
	}, nil
}

func (s *PlanService) ListCountryPrices(ctx context.Context, planID snowflake.ID) ([]pricingdomain.CountryPlanPrice, error) {
	if _, err := s.GetPlan(ctx, planID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListCountryPrices(ctx, planID)
	if err != nil {
		return nil, err
	}
	prices := make([]pricingdomain.CountryPlanPrice, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			prices = append(prices, *row)
		}
	}
	return prices, nil
}

func (s *PlanService) UpsertCountryPrice(ctx context.Context, req pricingdomain.UpsertCountryPriceRequest) (*pricingdomain.CountryPlanPrice, error) {
	if !req.Price.IsPositive() {
		return nil, pricingdomain.ErrInvalidPrice
	}
	plan, err := s.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	country, currency, err := s.registry.CountryCurrency(req.CountryCode)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	row := &pricingdomain.CountryPlanPrice{
		ID:           s.genID.Generate(),
		PlanID:       plan.ID,
		CountryCode:  country.Code,
		CurrencyCode: currency.Code,
		Price:        RoundAmount(req.Price, currency.Scale()),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.UpsertCountryPrice(ctx, row); err != nil {
		return nil, fmt.Errorf("upsert plan price: %w", err)
	}

	stored, err := s.repo.FindCountryPrice(ctx, plan.ID, country.Code)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, errors.New("plan price missing after upsert")
	}

	if s.auditSvc != nil {
		targetID := plan.ID.String()
		_ = s.auditSvc.AuditLog(ctx, "", nil, auditdomain.ActionPlanPriceUpsert, "plan", &targetID, map[string]any{
			"country_code":  country.Code,
			"currency_code": currency.Code,
			"price":         stored.Price.String(),
		})
	}
	return stored, nil
}

// ReorderPlans assigns sort_order by position in ids inside one transaction.
// Any unknown id rolls the whole reorder back.
func (s *PlanService) ReorderPlans(ctx context.Context, ids []snowflake.ID) error {
	if len(ids) == 0 {
		return pricingdomain.ErrInvalidOrder
	}
	seen := make(map[snowflake.ID]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			return pricingdomain.ErrInvalidOrder
		}
		if _, ok := seen[id]; ok {
			return pricingdomain.ErrInvalidOrder
		}
		seen[id] = struct{}{}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, id := range ids {
			affected, err := s.repo.SetSortOrder(ctx, tx, id, i+1)
			if err != nil {
				return err
			}
			if affected == 0 {
				return pricingdomain.ErrPlanNotFound
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.plans.Purge()

	if s.auditSvc != nil {
		order := make([]string, 0, len(ids))
		for _, id := range ids {
			order = append(order, id.String())
		}
		_ = s.auditSvc.AuditLog(ctx, "", nil, auditdomain.ActionPlanReorder, "plan", nil, map[string]any{
			"order": order,
		})
	}
	s.log.Info("plans reordered", zap.Int("count", len(ids)))
	return nil
}

var _ pricingdomain.PlanService = (*PlanService)(nil)
