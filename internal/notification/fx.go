package notification

import (
	"context"
	"fmt"

	"github.com/smallbiznis/ledgerbook/internal/config"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(NewFromConfig),
	fx.Provide(NewDispatcher),
	fx.Provide(func(d *Dispatcher) invoicedomain.Notifier { return d }),
	fx.Invoke(registerLifecycle),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) (Provider, error) {
	switch cfg.Email.Provider {
	case "smtp":
		return NewSMTP(SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUser,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.From,
		}), nil
	case "ses":
		return NewSES(context.Background(), cfg.Email.SESRegion, cfg.Email.From)
	case "", "noop":
		log.Info("email delivery disabled, using noop provider")
		return &NoOpProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}
}

// registerLifecycle drains in-flight deliveries on shutdown.
func registerLifecycle(lc fx.Lifecycle, d *Dispatcher) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				d.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
