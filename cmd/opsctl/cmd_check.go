package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Jeffreasy/MarketplaceOps/internal/diagnose"
	"github.com/Jeffreasy/MarketplaceOps/internal/report"
)

var checkCmd = &cobra.Command{
	Use:   "check [check...]",
	Short: "Run read-only consistency checks against the database",
	Long: `Runs the named checks, or all of them when none are given:

  currency    payment currency codes and amounts
  escrow      escrow, release and payout consistency
  providers   payout recipients and provider roles
  bookings    status breakdown and unpaid bookings
  categories  category assignment against the catalog
  enums       database enum labels against the application`,
	RunE: runCheck,
}

var listChecks bool

func init() {
	checkCmd.Flags().BoolVar(&listChecks, "list", false, "List the available checks and exit")
}

func diagnoseOptions() (diagnose.Options, error) {
	catalog, err := loadCatalog()
	if err != nil {
		return diagnose.Options{}, err
	}
	return diagnose.Options{
		DefaultCurrency: cfg.DefaultCurrency,
		PlatformFeeBPS:  cfg.PlatformFeeBPS,
		StaleEscrow:     cfg.StaleEscrow,
		CanonicalSlugs:  catalog.CanonicalSlugs(),
		Schema:          schemaName,
	}, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	opts, err := diagnoseOptions()
	if err != nil {
		return err
	}

	checks, err := diagnose.Select(opts, args)
	if err != nil {
		return err
	}

	p := report.New(stdout)
	if listChecks {
		rows := make([][]string, 0, len(checks))
		for _, c := range checks {
			rows = append(rows, []string{c.Name(), c.Description()})
		}
		p.Table([]string{"Check", "Description"}, rows)
		return nil
	}

	db, err := openDB(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	p.Info("Target: %s/%s", cfg.DatabaseHost(), cfg.DatabaseName())
	r := diagnose.Run(cmd.Context(), db, checks, log)
	r.Print(p)
	p.Summary()

	if r.Failed() {
		return failed{what: "check", count: r.Count(report.LevelFail)}
	}
	return nil
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect tables, columns and enums",
}

var schemaTablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List tables with estimated row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		rows, err := diagnose.Tables(cmd.Context(), db, schemaName)
		if err != nil {
			return err
		}
		p := report.New(stdout)
		p.Section("Tables in " + schemaName)
		p.Table([]string{"Table", "Rows (est.)"}, rows)
		return nil
	},
}

var schemaColumnsCmd = &cobra.Command{
	Use:   "columns <table>",
	Short: "Describe the columns of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		cols, err := diagnose.Columns(cmd.Context(), db, schemaName, args[0])
		if err != nil {
			return err
		}

		rows := make([][]string, 0, len(cols))
		for _, c := range cols {
			rows = append(rows, []string{c.Name, c.DataType, strconv.FormatBool(c.Nullable), c.Default})
		}
		p := report.New(stdout)
		p.Section(fmt.Sprintf("%s.%s", schemaName, args[0]))
		p.Table([]string{"Column", "Type", "Nullable", "Default"}, rows)
		return nil
	},
}

var schemaEnumsCmd = &cobra.Command{
	Use:   "enums",
	Short: "List enum types and compare them with the application's values",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		enums, err := diagnose.Enums(cmd.Context(), db, schemaName)
		if err != nil {
			return err
		}
		p := report.New(stdout)
		printEnums(p, enums)

		checks, err := diagnose.Select(diagnose.Options{Schema: schemaName}, []string{"enums"})
		if err != nil {
			return err
		}
		r := diagnose.Run(cmd.Context(), db, checks, log)
		r.Print(p)
		if r.Failed() {
			return failed{what: "enum drift", count: r.Count(report.LevelFail)}
		}
		return nil
	},
}

func printEnums(p *report.Printer, enums map[string][]string) {
	names := make([]string, 0, len(enums))
	for name := range enums {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, strings.Join(enums[name], ", ")})
	}
	p.Section("Enums in " + schemaName)
	p.Table([]string{"Type", "Values"}, rows)
}

func init() {
	schemaCmd.AddCommand(schemaTablesCmd, schemaColumnsCmd, schemaEnumsCmd)
}
