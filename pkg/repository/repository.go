package repository

import (
	"context"

	"github.com/smallbiznis/estate/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic gorm-backed store for simple single-table models.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID any, resource any) (int64, error)
	Count(ctx context.Context, query *T) (int64, error)
}
