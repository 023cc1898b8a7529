package migration

import (
	"github.com/smallbiznis/billingcore/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		log = log.Named("migration")
		if conn.Dialector.Name() == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			log.Info("applying sql migrations")
			return RunMigrations(sqlDB)
		}
		if !cfg.DBAutoMigrate {
			log.Info("auto migrate disabled", zap.String("dialect", conn.Dialector.Name()))
			return nil
		}
		log.Info("auto migrating models", zap.String("dialect", conn.Dialector.Name()))
		return AutoMigrate(conn)
	}),
)
