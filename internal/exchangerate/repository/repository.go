package repository

import (
	"context"

	"github.com/smallbiznis/estate/internal/exchangerate/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) List(ctx context.Context) ([]domain.ExchangeRate, error) {
	var rates []domain.ExchangeRate
	err := r.db.WithContext(ctx).Raw(
		`SELECT currency_code, base_currency, rate, source, updated_at
		 FROM exchange_rates
		 ORDER BY currency_code ASC`,
	).Scan(&rates).Error
	if err != nil {
		return nil, err
	}
	return rates, nil
}

// UpsertAll replaces the snapshot rows in a single transaction.
func (r *repo) UpsertAll(ctx context.Context, rates []domain.ExchangeRate) error {
	if len(rates) == 0 {
		return domain.ErrEmptySnapshot
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "currency_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"base_currency", "rate", "source", "updated_at"}),
		}).Create(&rates).Error
	})
}
