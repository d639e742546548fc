package audit

import (
	"github.com/smallbiznis/ledgerbook/internal/audit/repository"
	"github.com/smallbiznis/ledgerbook/internal/audit/service"
	"go.uber.org/fx"
)

// Module exposes only the audit service. The log is append-only, so the
// repository stays private to this module and nothing else can write rows.
var Module = fx.Module("audit",
	fx.Provide(repository.Provide, fx.Private),
	fx.Provide(service.NewService),
)
