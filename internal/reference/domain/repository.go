package domain

import "context"

// Repository mirrors the in-memory registry into reference tables so
// reporting queries can join on them.
type Repository interface {
	SyncCountries(ctx context.Context, countries []CountryProfile) error
	SyncCurrencies(ctx context.Context, currencies []Currency) error
	ListCountries(ctx context.Context) ([]CountryProfile, error)
}
