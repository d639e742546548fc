package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"github.com/smallbiznis/ledgerbook/pkg/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type resolverParam struct {
	fx.In

	Repo repository.Repository[taxdomain.TaxRate]
}

type resolver struct {
	repo repository.Repository[taxdomain.TaxRate]
}

func NewResolver(p resolverParam) taxdomain.Resolver {
	return &resolver{repo: p.Repo}
}

func (r *resolver) Resolve(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*taxdomain.TaxRate, error) {
	if id == 0 {
		return nil, nil
	}
	return r.repo.WithTrx(tx).FindOne(ctx, &taxdomain.TaxRate{OrgID: orgID, ID: id})
}

func (r *resolver) Require(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*taxdomain.TaxRate, error) {
	rate, err := r.Resolve(ctx, tx, orgID, id)
	if err != nil {
		return nil, err
	}
	if rate == nil {
		return nil, taxdomain.ErrNotFound
	}
	return rate, nil
}
