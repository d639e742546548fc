package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbook/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic org-scoped store used by the catalog style entities
// (tax rates, discounts). Ledger aggregates use hand written repositories.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, orgID, id snowflake.ID, fields map[string]any) (int64, error)
	Count(ctx context.Context, query *T) (int64, error)
}
