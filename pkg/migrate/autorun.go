package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot when the service runs
// in dev with STOREFRONT_AUTO_MIGRATE set. Other environments migrate through
// cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if client == nil {
		return fmt.Errorf("database client required for auto-migrate")
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	src := EmbeddedSource()
	files, err := src.Files()
	if err != nil {
		return fmt.Errorf("embedded migrations invalid: %w", err)
	}
	latest := int64(0)
	if len(files) > 0 {
		latest = files[len(files)-1].Version
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":            cfg.App.Env,
		"source":         "embedded",
		"migrations":     len(files),
		"latest_version": latest,
	})
	logg.Info(ctx, "applying embedded migrations (dev auto-migrate)")

	if err := Run(ctx, sqlDB, src, "up"); err != nil {
		return err
	}
	logg.Info(ctx, "schema up to date")
	return nil
}
