package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Jeffreasy/MarketplaceOps/internal/audit"
	"github.com/Jeffreasy/MarketplaceOps/internal/fixup"
	"github.com/Jeffreasy/MarketplaceOps/internal/guard"
	"github.com/Jeffreasy/MarketplaceOps/internal/report"
	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
)

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Reconcile data with the catalog (dry-run unless --apply)",
	Long: `Every fix runs inside a transaction. Without --apply the transaction is
rolled back and only the affected row counts are reported. With --apply it is
committed together with a row in ops_audit_log.`,
}

var (
	fixApply      bool
	fixGuard      guardFlags
	fixCategories []string
	fixCurrency   string
)

var fixCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Upsert canonical categories, merge aliases, deactivate strays",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog()
		if err != nil {
			return err
		}
		return runFixup(cmd.Context(), audit.ActionFixCategories, fixup.StandardizeCategories(catalog))
	},
}

var fixServicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Insert or reactivate catalog services missing from their category",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog()
		if err != nil {
			return err
		}
		return runFixup(cmd.Context(), audit.ActionFixServices, fixup.EnsureServices(catalog, fixCategories))
	},
}

var fixCurrencyCmd = &cobra.Command{
	Use:   "currency",
	Short: "Backfill missing payment currencies and normalise codes",
	RunE: func(cmd *cobra.Command, args []string) error {
		currency := fixCurrency
		if currency == "" {
			currency = cfg.DefaultCurrency
		}
		return runFixup(cmd.Context(), audit.ActionFixCurrency, fixup.BackfillCurrency(currency))
	},
}

var fixEnumsCmd = &cobra.Command{
	Use:   "enums",
	Short: "Add enum values the application writes but the database lacks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFixup(cmd.Context(), audit.ActionFixEnums, fixup.PatchEnums(schemaName))
	},
}

func runFixup(ctx context.Context, action audit.Action, fn fixup.Fixup) error {
	g := guard.New(cfg, log)
	target := g.Target()

	var db *storage.Database
	defer func() {
		if db != nil {
			db.Close()
		}
	}()

	exec := &fixup.Executor{
		Open: func(ctx context.Context) (storage.TxBeginner, error) {
			var err error
			db, err = openDB(ctx)
			if err != nil {
				return nil, err
			}
			return db, nil
		},
		Guard:  g,
		Audit:  newRecorder(),
		Logger: log,
		Actor:  cfg.Operator,
		Target: target.Host + "/" + target.Database,
	}

	res, err := exec.Run(ctx, action, fixApply, fixGuard.confirmation(), fn)
	if err != nil {
		return err
	}
	printFixup(report.New(stdout), res)
	return nil
}

func printFixup(p *report.Printer, res fixup.Result) {
	mode := "dry run, rolled back"
	if res.Applied {
		mode = "applied"
	}
	p.Section(strings.ToLower(string(res.Action)) + " (" + mode + ")")

	if len(res.Changes) == 0 {
		p.Line(report.LevelOK, "nothing to change")
		return
	}

	rows := make([][]string, 0, len(res.Changes))
	for _, c := range res.Changes {
		rows = append(rows, []string{c.Action, c.Target, strconv.FormatInt(c.Rows, 10)})
	}
	p.Table([]string{"Action", "Target", "Rows"}, rows)

	if res.Applied {
		p.Line(report.LevelOK, "%d rows changed", res.Rows())
	} else {
		p.Line(report.LevelInfo, "%d rows would change; re-run with --apply", res.Rows())
	}
}

func init() {
	for _, c := range []*cobra.Command{fixCategoriesCmd, fixServicesCmd, fixCurrencyCmd, fixEnumsCmd} {
		c.Flags().BoolVar(&fixApply, "apply", false, "Commit the changes instead of rolling back")
		fixGuard.register(c)
		fixCmd.AddCommand(c)
	}
	fixServicesCmd.Flags().StringSliceVar(&fixCategories, "category", nil, "Only ensure services of these category slugs")
	fixCurrencyCmd.Flags().StringVar(&fixCurrency, "currency", "", "Currency to backfill (default: OPS_DEFAULT_CURRENCY)")
}
