package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/estate/internal/clock"
	"github.com/smallbiznis/estate/internal/config"
	pricingdomain "github.com/smallbiznis/estate/internal/pricing/domain"
	"github.com/smallbiznis/estate/internal/reference"
	taxdomain "github.com/smallbiznis/estate/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultPlan is a plan created on first start when no plan with its code exists.
type DefaultPlan struct {
	Code         string
	Name         string
	Type         pricingdomain.PlanType
	BasePrice    string
	DurationDays int
}

var DefaultPlans = []DefaultPlan{
	{Code: "listing-basic", Name: "Basic Listing", Type: pricingdomain.PlanTypeListing, BasePrice: "29.00", DurationDays: 30},
	{Code: "listing-featured", Name: "Featured Listing", Type: pricingdomain.PlanTypeListing, BasePrice: "79.00", DurationDays: 30},
	{Code: "agent-monthly", Name: "Agent Monthly", Type: pricingdomain.PlanTypeSubscription, BasePrice: "149.00", DurationDays: 30},
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Registry *reference.Registry
	Pricing  *config.PricingConfigHolder
	Tax      taxdomain.Service
	Plans    pricingdomain.PlanService
}

// Run fills the reference tables, default tax rules and default plans.
// Every step is idempotent.
func Run(ctx context.Context, p Params) error {
	if p.DB == nil {
		return errors.New("seed database handle is required")
	}
	log := p.Log.Named("seed")

	if err := reference.SyncTables(ctx, p.DB, p.Registry, p.Clock.Now()); err != nil {
		return fmt.Errorf("sync reference tables: %w", err)
	}

	inserted, err := p.Tax.SeedDefaults(ctx)
	if err != nil {
		return fmt.Errorf("seed tax rules: %w", err)
	}

	created, err := ensureDefaultPlans(ctx, p.Plans, p.Pricing.Get().BaseCurrency)
	if err != nil {
		return fmt.Errorf("seed plans: %w", err)
	}

	log.Info("seed complete",
		zap.Int("countries", len(p.Registry.Countries())),
		zap.Int("tax_rules_inserted", inserted),
		zap.Int("plans_created", created),
	)
	return nil
}

func ensureDefaultPlans(ctx context.Context, plans pricingdomain.PlanService, base string) (int, error) {
	created := 0
	for _, item := range DefaultPlans {
		price, err := decimal.NewFromString(item.BasePrice)
		if err != nil {
			return created, err
		}
		_, err = plans.CreatePlan(ctx, pricingdomain.CreatePlanRequest{
			Code:         item.Code,
			Name:         item.Name,
			Type:         item.Type,
			BasePrice:    price,
			BaseCurrency: base,
			DurationDays: item.DurationDays,
		})
		if errors.Is(err, pricingdomain.ErrPlanCodeTaken) {
			continue
		}
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
