package discount

import (
	"github.com/smallbiznis/ledgerbook/internal/discount/domain"
	"github.com/smallbiznis/ledgerbook/internal/discount/service"
	"github.com/smallbiznis/ledgerbook/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("discount.service",
	fx.Provide(repository.ProvideStore[domain.Discount]),
	fx.Provide(service.NewRedeemer),
	fx.Provide(service.NewService),
)
