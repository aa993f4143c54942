// Command opsctl bundles the marketplace operations toolkit: diagnostics,
// environment gates, data fixups, simulations and the toolkit's migrations.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"

	"github.com/Jeffreasy/MarketplaceOps/internal/audit"
	"github.com/Jeffreasy/MarketplaceOps/internal/config"
	"github.com/Jeffreasy/MarketplaceOps/internal/fixup"
	"github.com/Jeffreasy/MarketplaceOps/internal/guard"
	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
	"github.com/Jeffreasy/MarketplaceOps/pkg/logger"
)

var (
	// Global flags
	verbose     bool
	schemaName  string
	catalogPath string

	// Loaded in PersistentPreRunE
	cfg           config.Config
	log           *slog.Logger
	sentryEnabled bool

	// Report output; replaced in tests
	stdout io.Writer = os.Stdout
)

var rootCmd = &cobra.Command{
	Use:   "opsctl",
	Short: "Operations toolkit for the services marketplace",
	Long: `opsctl inspects and repairs the marketplace database and its deployment
configuration.

Read-only commands (check, schema, verify, simulate in dry-run) are always safe.
Commands that write (fix --apply, simulate escrow --keep, migrate) are refused
against production unless explicitly confirmed.

Exit status is 0 when every check passed and 1 on any violation or error.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		log = logger.Setup(cfg.AppEnv, verbose)

		if cfg.SentryDSN != "" {
			if err := sentry.Init(sentry.ClientOptions{
				Dsn:         cfg.SentryDSN,
				Environment: cfg.AppEnv,
			}); err != nil {
				log.Warn("sentry_init_failed", "error", err)
			} else {
				sentryEnabled = true
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&schemaName, "schema", "public", "Postgres schema holding the marketplace tables")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "Category catalog YAML (default: embedded catalog)")

	rootCmd.AddCommand(
		checkCmd,
		schemaCmd,
		verifyCmd,
		fixCmd,
		simulateCmd,
		webhookCmd,
		migrateCmd,
	)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the command tree and reports a failure once.
func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)

	// Violations are already on stdout; only errors are reported.
	var violations failed
	if err != nil && sentryEnabled && !errors.As(err, &violations) {
		sentry.CaptureException(err)
		sentry.Flush(2 * time.Second)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// openDB connects to the configured database.
func openDB(ctx context.Context) (*storage.Database, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	log.Debug("database_connected", "host", cfg.DatabaseHost(), "database", cfg.DatabaseName())
	return db, nil
}

func loadCatalog() (*fixup.Catalog, error) {
	return fixup.LoadCatalog(catalogPath)
}

func newRecorder() *audit.Recorder {
	return audit.NewRecorder(audit.NewTrail(os.Stderr), log)
}

// guardFlags are shared by every command that writes.
type guardFlags struct {
	allowProduction bool
	otp             string
}

func (g *guardFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&g.allowProduction, "allow-production", false, "Permit writing to a production database")
	cmd.Flags().StringVar(&g.otp, "otp", "", "TOTP code, required for production when OPS_TOTP_SECRET is set")
}

func (g *guardFlags) confirmation() guard.Confirmation {
	return guard.Confirmation{AllowProduction: g.allowProduction, OTP: g.otp}
}

// failed is returned when a command printed violations; the details are
// already on stdout.
type failed struct {
	what  string
	count int
}

func (f failed) Error() string {
	return fmt.Sprintf("%s: %d failures", f.what, f.count)
}
