package repository

import (
	"context"

	taxdomain "github.com/smallbiznis/estate/internal/tax/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func NewRepository() taxdomain.Repository {
	return &repository{}
}

func (r *repository) FindByCountry(ctx context.Context, db *gorm.DB, countryCode string) (*taxdomain.TaxRule, error) {
	var rule taxdomain.TaxRule
	err := db.WithContext(ctx).Raw(
		`SELECT country_code, rate, notes, updated_by, created_at, updated_at
		 FROM tax_rules
		 WHERE country_code = ?`,
		countryCode,
	).Scan(&rule).Error
	if err != nil {
		return nil, err
	}
	if rule.CountryCode == "" {
		return nil, nil
	}
	return &rule, nil
}

func (r *repository) List(ctx context.Context, db *gorm.DB, countryCode string) ([]taxdomain.TaxRule, error) {
	var rules []taxdomain.TaxRule
	stmt := db.WithContext(ctx).Model(&taxdomain.TaxRule{})
	if countryCode != "" {
		stmt = stmt.Where("country_code = ?", countryCode)
	}
	if err := stmt.Order("country_code ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// Upsert writes the rule keyed by country in one statement.
func (r *repository) Upsert(ctx context.Context, db *gorm.DB, rule *taxdomain.TaxRule) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "country_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"rate", "notes", "updated_by", "updated_at"}),
		}).
		Create(rule).Error
}

func (r *repository) InsertIfAbsent(ctx context.Context, db *gorm.DB, rule *taxdomain.TaxRule) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rule)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
