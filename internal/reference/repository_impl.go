package reference

import (
	"context"

	"github.com/smallbiznis/estate/internal/reference/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ domain.Repository = (*repository)(nil)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) SyncCountries(ctx context.Context, countries []domain.CountryProfile) error {
	if len(countries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "local_name", "currency_code", "currency_symbol", "tax_category", "updated_at"}),
		}).
		Create(&countries).Error
}

func (r *repository) SyncCurrencies(ctx context.Context, currencies []domain.Currency) error {
	if len(currencies) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "symbol", "minor_unit", "updated_at"}),
		}).
		Create(&currencies).Error
}

func (r *repository) ListCountries(ctx context.Context) ([]domain.CountryProfile, error) {
	var countries []domain.CountryProfile
	err := r.db.WithContext(ctx).
		Raw(`SELECT code, name, local_name, currency_code, currency_symbol, tax_category, updated_at FROM countries ORDER BY code`).
		Scan(&countries).Error
	if err != nil {
		return nil, err
	}
	return countries, nil
}
