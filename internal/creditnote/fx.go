package creditnote

import (
	"github.com/smallbiznis/ledgerbook/internal/creditnote/repository"
	"github.com/smallbiznis/ledgerbook/internal/creditnote/service"
	"go.uber.org/fx"
)

var Module = fx.Module("creditnote.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
