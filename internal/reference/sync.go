package reference

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// SyncTables writes the registry contents into the reference tables.
func SyncTables(ctx context.Context, db *gorm.DB, registry *Registry, now time.Time) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)

		currencies := registry.Currencies()
		for i := range currencies {
			currencies[i].UpdatedAt = now
		}
		if err := repo.SyncCurrencies(ctx, currencies); err != nil {
			return err
		}

		countries := registry.Countries()
		for i := range countries {
			countries[i].UpdatedAt = now
		}
		return repo.SyncCountries(ctx, countries)
	})
}
