package diagnose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Jeffreasy/MarketplaceOps/internal/market"
	"github.com/Jeffreasy/MarketplaceOps/internal/report"
	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
)

var ErrTableNotFound = errors.New("table not found")

// Column describes one column from information_schema.
type Column struct {
	Name     string
	DataType string
	Nullable bool
	Default  string
}

// Columns lists the columns of schema.table in ordinal order.
func Columns(ctx context.Context, db storage.DB, schema, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable, COALESCE(column_default, '')
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var col Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.DataType, &nullable, &col.Default); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.Nullable = nullable == "YES"
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrTableNotFound, schema, table)
	}
	return cols, nil
}

// Tables lists base tables with their estimated row counts.
func Tables(ctx context.Context, db storage.DB, schema string) ([][]string, error) {
	return queryStrings(ctx, db, `
		SELECT t.table_name, COALESCE(s.n_live_tup, 0)
		FROM information_schema.tables t
		LEFT JOIN pg_stat_user_tables s ON s.relname = t.table_name AND s.schemaname = t.table_schema
		WHERE t.table_schema = $1 AND t.table_type = 'BASE TABLE'
		ORDER BY t.table_name`, schema)
}

// Enums returns every enum type in schema with its labels in sort order.
func Enums(ctx context.Context, db storage.DB, schema string) (map[string][]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON e.enumtypid = t.oid
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = $1
		ORDER BY t.typname, e.enumsortorder`, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query enums: %w", err)
	}
	defer rows.Close()

	enums := make(map[string][]string)
	for rows.Next() {
		var typ, label string
		if err := rows.Scan(&typ, &label); err != nil {
			return nil, fmt.Errorf("failed to scan enum: %w", err)
		}
		enums[typ] = append(enums[typ], label)
	}
	return enums, rows.Err()
}

// Drift is the difference between an expected enum and the database's.
type Drift struct {
	Type        string
	TypeMissing bool
	Missing     []string // Expected but absent in the database
	Extra       []string // Present in the database but unknown to the application
}

// EnumDrift compares actual enums against expected ones. Types present only
// in actual are ignored. The result is sorted by type name and only contains
// types that differ.
func EnumDrift(actual, expected map[string][]string) []Drift {
	var drifts []Drift
	for _, typ := range sortedKeys(expected) {
		want := expected[typ]
		have, ok := actual[typ]
		if !ok {
			drifts = append(drifts, Drift{Type: typ, TypeMissing: true, Missing: want})
			continue
		}

		d := Drift{Type: typ, Missing: difference(want, have), Extra: difference(have, want)}
		if len(d.Missing) > 0 || len(d.Extra) > 0 {
			drifts = append(drifts, d)
		}
	}
	return drifts
}

// difference returns the elements of a not in b, keeping a's order.
func difference(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, v := range b {
		in[v] = true
	}
	var out []string
	for _, v := range a {
		if !in[v] {
			out = append(out, v)
		}
	}
	return out
}

// EnumCheck reports drift between the database enums and market.EnumValues.
type EnumCheck struct {
	opts Options
}

func (c *EnumCheck) Name() string { return "enums" }

func (c *EnumCheck) Description() string {
	return "Postgres enum labels against the values the application writes"
}

func (c *EnumCheck) Run(ctx context.Context, db storage.DB) ([]Finding, error) {
	actual, err := Enums(ctx, db, c.opts.Schema)
	if err != nil {
		return nil, err
	}

	drifts := EnumDrift(actual, market.EnumValues)
	if len(drifts) == 0 {
		return []Finding{{
			Check:   c.Name(),
			Level:   report.LevelOK,
			Message: fmt.Sprintf("%d enum types match", len(market.EnumValues)),
		}}, nil
	}

	var findings []Finding
	for _, d := range drifts {
		switch {
		case d.TypeMissing:
			findings = append(findings, Finding{Check: c.Name(), Level: report.LevelFail, Subject: d.Type,
				Message: "enum type does not exist"})
		case len(d.Missing) > 0:
			findings = append(findings, Finding{Check: c.Name(), Level: report.LevelFail, Subject: d.Type,
				Message: fmt.Sprintf("missing values %s (fix with: opsctl fix enums)", strings.Join(d.Missing, ", "))})
		}
		if len(d.Extra) > 0 {
			findings = append(findings, Finding{Check: c.Name(), Level: report.LevelWarn, Subject: d.Type,
				Message: fmt.Sprintf("unknown values %s", strings.Join(d.Extra, ", "))})
		}
	}
	return findings, nil
}
