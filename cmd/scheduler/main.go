package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbook/internal/audit"
	"github.com/smallbiznis/ledgerbook/internal/clock"
	"github.com/smallbiznis/ledgerbook/internal/config"
	"github.com/smallbiznis/ledgerbook/internal/creditnote"
	"github.com/smallbiznis/ledgerbook/internal/customer"
	"github.com/smallbiznis/ledgerbook/internal/discount"
	"github.com/smallbiznis/ledgerbook/internal/invoice"
	"github.com/smallbiznis/ledgerbook/internal/notification"
	"github.com/smallbiznis/ledgerbook/internal/observability"
	"github.com/smallbiznis/ledgerbook/internal/recurring"
	"github.com/smallbiznis/ledgerbook/internal/rendering"
	"github.com/smallbiznis/ledgerbook/internal/scheduler"
	"github.com/smallbiznis/ledgerbook/internal/sequence"
	"github.com/smallbiznis/ledgerbook/internal/tax"
	"github.com/smallbiznis/ledgerbook/pkg/db"
	"go.uber.org/fx"
)

// scheduler runs only the background jobs. Schema migrations are left to the
// API process.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		audit.Module,
		customer.Module,
		sequence.Module,
		tax.Module,
		discount.Module,
		invoice.Module,
		creditnote.Module,
		recurring.Module,
		notification.Module,
		rendering.Module,

		// No server module.
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
