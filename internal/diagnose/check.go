// Package diagnose runs read-only consistency checks against the marketplace
// database and collects their findings.
package diagnose

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Jeffreasy/MarketplaceOps/internal/report"
	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
)

// ErrUnknownCheck is returned by Select for names that are not registered.
var ErrUnknownCheck = errors.New("unknown check")

// maxListed caps the number of offending rows listed per query.
const maxListed = 50

// Finding is a single observation made by a check.
type Finding struct {
	Check   string
	Level   report.Level
	Subject string // Row id or value the finding is about; empty for aggregates
	Message string
}

// Check inspects the database and reports findings. Run returns an error only
// when the check itself could not execute.
type Check interface {
	Name() string
	Description() string
	Run(ctx context.Context, db storage.DB) ([]Finding, error)
}

// Options parameterise the registered checks.
type Options struct {
	DefaultCurrency string
	PlatformFeeBPS  int64
	StaleEscrow     time.Duration
	CanonicalSlugs  []string // Active categories that are expected to exist
	Schema          string
	Now             func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// All returns every registered check in execution order.
func All(opts Options) []Check {
	if opts.Schema == "" {
		opts.Schema = "public"
	}
	return []Check{
		&CurrencyCheck{opts: opts},
		&EscrowCheck{opts: opts},
		&ProviderCheck{},
		&BookingCheck{},
		&CategoryCheck{opts: opts},
		&EnumCheck{opts: opts},
	}
}

// Select returns the named checks, or all of them when names is empty.
func Select(opts Options, names []string) ([]Check, error) {
	all := All(opts)
	if len(names) == 0 {
		return all, nil
	}

	byName := make(map[string]Check, len(all))
	for _, c := range all {
		byName[c.Name()] = c
	}

	selected := make([]Check, 0, len(names))
	for _, name := range names {
		c, ok := byName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCheck, name)
		}
		selected = append(selected, c)
	}
	return selected, nil
}

// Report is the outcome of a run.
type Report struct {
	Findings []Finding
	order    []string
}

// Failed reports whether any finding is a failure.
func (r *Report) Failed() bool {
	for _, f := range r.Findings {
		if f.Level == report.LevelFail {
			return true
		}
	}
	return false
}

// Count returns the number of findings at level.
func (r *Report) Count(level report.Level) int {
	n := 0
	for _, f := range r.Findings {
		if f.Level == level {
			n++
		}
	}
	return n
}

// Print renders findings grouped by check.
func (r *Report) Print(p *report.Printer) {
	grouped := make(map[string][]Finding)
	for _, f := range r.Findings {
		grouped[f.Check] = append(grouped[f.Check], f)
	}

	for _, name := range r.order {
		p.Section(name)
		for _, f := range grouped[name] {
			msg := f.Message
			if f.Subject != "" {
				msg = fmt.Sprintf("%s: %s", f.Subject, f.Message)
			}
			p.Line(f.Level, "%s", msg)
		}
	}
}

// Run executes checks sequentially. A failing check is recorded as a fail
// finding and does not stop the remaining checks.
func Run(ctx context.Context, db storage.DB, checks []Check, log *slog.Logger) *Report {
	r := &Report{}
	for _, c := range checks {
		r.order = append(r.order, c.Name())
		start := time.Now()

		findings, err := c.Run(ctx, db)
		if err != nil {
			log.Error("check_failed", "check", c.Name(), "error", err)
			r.Findings = append(r.Findings, Finding{
				Check:   c.Name(),
				Level:   report.LevelFail,
				Message: fmt.Sprintf("check could not run: %v", err),
			})
			continue
		}

		log.Debug("check_completed", "check", c.Name(), "findings", len(findings), "duration", time.Since(start))
		r.Findings = append(r.Findings, findings...)
	}
	return r
}

// queryStrings runs query and returns every row as strings; NULL becomes "NULL".
func queryStrings(ctx context.Context, db storage.DB, query string, args ...any) ([][]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out [][]string
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make([]string, len(cols))
		for i, v := range vals {
			if v.Valid {
				row[i] = v.String
			} else {
				row[i] = "NULL"
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// rule is a query whose every returned row is a violation.
type rule struct {
	query   string
	args    []any
	level   report.Level
	clean   string                     // Message when no rows are returned
	message func(row []string) string // Message per offending row; row[0] is the subject
}

func (c rule) run(ctx context.Context, db storage.DB, check string) ([]Finding, error) {
	rows, err := queryStrings(ctx, db, c.query, c.args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []Finding{{Check: check, Level: report.LevelOK, Message: c.clean}}, nil
	}

	findings := make([]Finding, 0, len(rows))
	for i, row := range rows {
		if i == maxListed {
			findings = append(findings, Finding{
				Check:   check,
				Level:   c.level,
				Message: fmt.Sprintf("... %d more not listed", len(rows)-maxListed),
			})
			break
		}
		findings = append(findings, Finding{Check: check, Level: c.level, Subject: row[0], Message: c.message(row)})
	}
	return findings, nil
}

func runRules(ctx context.Context, db storage.DB, check string, rules []rule) ([]Finding, error) {
	var out []Finding
	for _, r := range rules {
		f, err := r.run(ctx, db, check)
		if err != nil {
			return nil, err
		}
		out = append(out, f...)
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
