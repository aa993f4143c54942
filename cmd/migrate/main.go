// Command migrate applies the toolkit migrations on deploy. It is the
// non-interactive twin of `opsctl migrate up` for release pipelines.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/Jeffreasy/MarketplaceOps/internal/audit"
	"github.com/Jeffreasy/MarketplaceOps/internal/config"
	"github.com/Jeffreasy/MarketplaceOps/internal/guard"
	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
	"github.com/Jeffreasy/MarketplaceOps/migrations"
	"github.com/Jeffreasy/MarketplaceOps/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Setup("development", false).Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	log := logger.Setup(cfg.AppEnv, false)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("migration_failed", "error", err)
		os.Exit(1)
	}
}

// run returns instead of exiting so the migrator and the pool are closed
// before the process ends.
func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	// Pipelines confirm production through the environment instead of flags.
	g := guard.New(cfg, log)
	confirm := guard.Confirmation{
		AllowProduction: os.Getenv("OPS_ALLOW_PRODUCTION") == "true",
		OTP:             os.Getenv("OPS_OTP"),
	}
	if err := g.Authorize("migrate_up", confirm); err != nil {
		return err
	}

	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := migrations.New(ctx, db.DB, log)
	if err != nil {
		return err
	}
	defer m.Close()

	changed, err := m.Up()
	if err != nil {
		return err
	}
	if !changed {
		log.Info("database_up_to_date")
		return nil
	}

	version, _, _, err := m.Version()
	if err != nil {
		return err
	}
	target := g.Target()
	audit.NewRecorder(audit.NewTrail(os.Stderr), log).Log(ctx, audit.Entry{
		Actor:   cfg.Operator,
		Action:  audit.ActionMigrateUp,
		Target:  target.Host + "/" + target.Database,
		Details: map[string]any{"version": version},
	})
	log.Info("migrations_applied", "version", version)
	return nil
}
