package rendering

import (
	"context"
	"fmt"

	"github.com/smallbiznis/ledgerbook/internal/config"
	creditnotedomain "github.com/smallbiznis/ledgerbook/internal/creditnote/domain"
	invoicedomain "github.com/smallbiznis/ledgerbook/internal/invoice/domain"
	"github.com/smallbiznis/ledgerbook/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rendering",
	fx.Provide(NewStorageFromConfig),
	fx.Provide(NewService),
	fx.Provide(
		func(s *Service) invoicedomain.DocumentRenderer { return s },
		func(s *Service) creditnotedomain.DocumentRenderer { return s },
		func(s *Service) scheduler.PendingRenderer { return s },
	),
	fx.Invoke(registerLifecycle),
)

func NewStorageFromConfig(cfg config.Config, log *zap.Logger) (Storage, error) {
	switch cfg.Storage.Provider {
	case "s3":
		log.Info("storing documents in s3", zap.String("bucket", cfg.Storage.S3Bucket))
		return NewS3Storage(context.Background(), cfg.Storage)
	case "", "local":
		return NewLocalStorage(cfg.Storage.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

func registerLifecycle(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				s.Wait()
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
