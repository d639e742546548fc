package migration

import (
	"github.com/smallbiznis/ledgerbook/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
			log.Info("database migrations applied", zap.String("dialect", cfg.DBType))
			return nil
		}
		if !cfg.DBAutoMigrate {
			log.Warn("schema migrations skipped", zap.String("dialect", cfg.DBType))
			return nil
		}
		if err := AutoMigrate(conn); err != nil {
			return err
		}
		log.Info("database schema auto-migrated", zap.String("dialect", cfg.DBType))
		return nil
	}),
)
