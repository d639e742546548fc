package recurring

import (
	recurringdomain "github.com/smallbiznis/ledgerbook/internal/recurring/domain"
	"github.com/smallbiznis/ledgerbook/internal/recurring/repository"
	recurringservice "github.com/smallbiznis/ledgerbook/internal/recurring/service"
	"go.uber.org/fx"
)

var Module = fx.Module("recurring.service",
	fx.Provide(repository.Provide),
	fx.Provide(recurringservice.NewService),
	fx.Provide(func(svc *recurringservice.Service) recurringdomain.Service { return svc }),
	fx.Provide(func(svc *recurringservice.Service) recurringdomain.Generator { return svc }),
)
