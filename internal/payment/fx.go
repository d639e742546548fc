package payment

import (
	"github.com/smallbiznis/ledgerbook/internal/config"
	"github.com/smallbiznis/ledgerbook/internal/payment/adapters"
	"github.com/smallbiznis/ledgerbook/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/ledgerbook/internal/payment/domain"
	"github.com/smallbiznis/ledgerbook/internal/payment/repository"
	paymentservice "github.com/smallbiznis/ledgerbook/internal/payment/service"
	"github.com/smallbiznis/ledgerbook/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config, log *zap.Logger) (*adapters.Registry, error) {
		return adapters.NewRegistry(cfg.Payments, log.Named("payment.adapters"), stripe.NewFactory())
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(func(svc *paymentservice.Service) paymentdomain.Service { return svc }),
	fx.Provide(webhook.NewService),
)
