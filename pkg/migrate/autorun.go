package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/orderplanner/pkg/config"
	"github.com/angelmondragon/orderplanner/pkg/db"
	"github.com/angelmondragon/orderplanner/pkg/db/models"
	"github.com/angelmondragon/orderplanner/pkg/logger"
	"gorm.io/gorm"
)

// AutoMigrate creates the planner schema from the models. Used for SQLite,
// where the Postgres SQL migrations do not apply.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.AutoMigrate(&models.Product{}, &models.Week{}, &models.Order{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Up brings the schema up to date for the configured driver.
func Up(ctx context.Context, cfg config.DBConfig, client *db.Client, dir string) error {
	if cfg.IsSQLite() {
		return AutoMigrate(client.DB().WithContext(ctx))
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	return Run(ctx, sqlDB, dir, "up")
}

// MaybeRunDev executes migrations automatically when the app is running in dev mode and
// the feature flag is enabled.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir, "driver": cfg.DB.Driver})
	logg.Info(ctx, "running migrations (dev auto-run)")

	if err := Up(ctx, cfg.DB, client, DefaultDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logg.Info(ctx, "migrations completed")
	return nil
}
