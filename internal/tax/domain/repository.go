package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByCountry(ctx context.Context, db *gorm.DB, countryCode string) (*TaxRule, error)
	List(ctx context.Context, db *gorm.DB, countryCode string) ([]TaxRule, error)
	Upsert(ctx context.Context, db *gorm.DB, rule *TaxRule) error
	InsertIfAbsent(ctx context.Context, db *gorm.DB, rule *TaxRule) (bool, error)
}
