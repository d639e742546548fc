package tax

import (
	taxdomain "github.com/smallbiznis/ledgerbook/internal/tax/domain"
	"github.com/smallbiznis/ledgerbook/internal/tax/service"
	"github.com/smallbiznis/ledgerbook/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("tax.service",
	fx.Provide(repository.ProvideStore[taxdomain.TaxRate]),
	fx.Provide(service.NewResolver),
	fx.Provide(service.NewService),
)
