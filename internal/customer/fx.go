package customer

import (
	"github.com/smallbiznis/ledgerbook/internal/customer/domain"
	"github.com/smallbiznis/ledgerbook/internal/customer/repository"
	"github.com/smallbiznis/ledgerbook/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.service",
	fx.Provide(repository.Provide),
	fx.Provide(fx.Annotate(
		service.New,
		fx.As(new(domain.Service)),
		fx.As(new(domain.Directory)),
	)),
)
