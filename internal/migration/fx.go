package migration

import (
	"context"
	"strings"

	"github.com/smallbiznis/estate/internal/config"
	"github.com/smallbiznis/estate/internal/seed"
	"github.com/smallbiznis/estate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger, p seed.Params) error {
		if err := Migrate(conn, cfg, log); err != nil {
			return err
		}
		return seed.Run(context.Background(), p)
	}),
)

// Migrate brings the schema up to date. Postgres uses the versioned SQL
// migrations; other dialects fall back to AutoMigrate when it is enabled.
func Migrate(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if strings.EqualFold(strings.TrimSpace(cfg.DBType), db.DialectPostgres) {
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
		log.Warn("auto migrate disabled; schema is not managed", zap.String("dialect", cfg.DBType))
		return nil
	}
	if err := AutoMigrate(conn); err != nil {
		return err
	}
	log.Info("database schema auto-migrated", zap.String("dialect", cfg.DBType))
	return nil
}
