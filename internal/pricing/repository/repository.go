package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/smallbiznis/estate/internal/pricing/domain"
	"github.com/smallbiznis/estate/pkg/db/option"
	"github.com/smallbiznis/estate/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	ListPlans(ctx context.Context, activeOnly bool) ([]*pricingdomain.Plan, error)
	FindPlan(ctx context.Context, id snowflake.ID) (*pricingdomain.Plan, error)
	CreatePlan(ctx context.Context, plan *pricingdomain.Plan) error
	FindCountryPrice(ctx context.Context, planID snowflake.ID, countryCode string) (*pricingdomain.CountryPlanPrice, error)
	ListCountryPrices(ctx context.Context, planID snowflake.ID) ([]*pricingdomain.CountryPlanPrice, error)
	UpsertCountryPrice(ctx context.Context, price *pricingdomain.CountryPlanPrice) error
	SetSortOrder(ctx context.Context, tx *gorm.DB, id snowflake.ID, order int) (int64, error)
}

type repo struct {
	db     *gorm.DB
	plans  repository.Repository[pricingdomain.Plan]
	prices repository.Repository[pricingdomain.CountryPlanPrice]
}

func Provide(db *gorm.DB) Repository {
	return &repo{
		db:     db,
		plans:  repository.ProvideStore[pricingdomain.Plan](db),
		prices: repository.ProvideStore[pricingdomain.CountryPlanPrice](db),
	}
}

func (r *repo) ListPlans(ctx context.Context, activeOnly bool) ([]*pricingdomain.Plan, error) {
	opts := []option.QueryOption{option.WithOrder("sort_order ASC, id ASC")}
	if activeOnly {
		opts = append(opts, option.WithWhere("active = ?", true))
	}
	return r.plans.Find(ctx, &pricingdomain.Plan{}, opts...)
}

func (r *repo) FindPlan(ctx context.Context, id snowflake.ID) (*pricingdomain.Plan, error) {
	return r.plans.FindOne(ctx, &pricingdomain.Plan{ID: id})
}

func (r *repo) CreatePlan(ctx context.Context, plan *pricingdomain.Plan) error {
	return r.plans.Create(ctx, plan)
}

func (r *repo) FindCountryPrice(ctx context.Context, planID snowflake.ID, countryCode string) (*pricingdomain.CountryPlanPrice, error) {
	return r.prices.FindOne(ctx, &pricingdomain.CountryPlanPrice{PlanID: planID, CountryCode: countryCode})
}

func (r *repo) ListCountryPrices(ctx context.Context, planID snowflake.ID) ([]*pricingdomain.CountryPlanPrice, error) {
	return r.prices.Find(ctx, &pricingdomain.CountryPlanPrice{PlanID: planID}, option.WithOrder("country_code ASC"))
}

func (r *repo) UpsertCountryPrice(ctx context.Context, price *pricingdomain.CountryPlanPrice) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "plan_id"}, {Name: "country_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"currency_code", "price", "updated_at"}),
		}).
		Create(price).Error
}

func (r *repo) SetSortOrder(ctx context.Context, tx *gorm.DB, id snowflake.ID, order int) (int64, error) {
	return r.plans.WithTrx(tx).Update(ctx, id, map[string]any{"sort_order": order})
}
