package domain

import (
	"context"
	"time"
)

// Source fetches a fresh rate table from an upstream provider.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (*Snapshot, error)
}

type Provider interface {
	Base() string
	Rate(ctx context.Context, currency string) (Quote, error)
	Rates(ctx context.Context) (*Snapshot, error)
	Refresh(ctx context.Context) (*Snapshot, error)
	SnapshotAge(ctx context.Context) (time.Duration, bool)
}

type Repository interface {
	List(ctx context.Context) ([]ExchangeRate, error)
	UpsertAll(ctx context.Context, rates []ExchangeRate) error
}
