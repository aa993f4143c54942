package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Jeffreasy/MarketplaceOps/internal/audit"
	"github.com/Jeffreasy/MarketplaceOps/internal/guard"
	"github.com/Jeffreasy/MarketplaceOps/internal/report"
	"github.com/Jeffreasy/MarketplaceOps/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the toolkit's own migrations (" + migrations.Table + ")",
	Long: `Manages the tables and indexes owned by opsctl. They are tracked in
` + migrations.Table + ` and never touch the application's Prisma migrations.`,
}

var (
	migrateSteps int
	migrateGuard guardFlags
)

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration(cmd.Context(), audit.ActionMigrateUp, func(m *migrations.Migrator) (bool, error) {
			return m.Up()
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last --steps migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration(cmd.Context(), audit.ActionMigrateDown, func(m *migrations.Migrator) (bool, error) {
			return m.Down(migrateSteps)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied migration version",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		m, err := migrations.New(cmd.Context(), db.DB, log)
		if err != nil {
			return err
		}
		defer m.Close()

		version, dirty, ok, err := m.Version()
		if err != nil {
			return err
		}

		p := report.New(stdout)
		p.Section("Migrations")
		switch {
		case !ok:
			p.Line(report.LevelWarn, "no migrations applied (run: opsctl migrate up)")
		case dirty:
			p.Line(report.LevelFail, "version %d is dirty; fix the failed migration and force the version", version)
			return failed{what: "migrate", count: 1}
		default:
			p.Line(report.LevelOK, "version %d", version)
		}
		return nil
	},
}

func runMigration(ctx context.Context, action audit.Action, apply func(*migrations.Migrator) (bool, error)) error {
	g := guard.New(cfg, log)
	if err := g.Authorize(strings.ToLower(string(action)), migrateGuard.confirmation()); err != nil {
		return err
	}

	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := migrations.New(ctx, db.DB, log)
	if err != nil {
		return err
	}
	defer m.Close()

	changed, err := apply(m)
	if err != nil {
		return err
	}

	p := report.New(stdout)
	if !changed {
		p.Line(report.LevelOK, "database is up to date")
		return nil
	}

	version, _, _, err := m.Version()
	if err != nil {
		return err
	}
	target := g.Target()
	newRecorder().Log(ctx, audit.Entry{
		Actor:   cfg.Operator,
		Action:  action,
		Target:  target.Host + "/" + target.Database,
		Details: map[string]any{"version": version},
	})
	p.Line(report.LevelOK, "now at version %d", version)
	return nil
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "Number of migrations to roll back")
	for _, c := range []*cobra.Command{migrateUpCmd, migrateDownCmd} {
		migrateGuard.register(c)
	}
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}
