// Package fixup reconciles marketplace data with the canonical catalog and
// the enum values the application writes. Every fixup runs in a transaction
// that is rolled back unless the caller asks to apply it.
package fixup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Jeffreasy/MarketplaceOps/internal/audit"
	"github.com/Jeffreasy/MarketplaceOps/internal/guard"
	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
)

// Change is one statement's effect.
type Change struct {
	Action string `json:"action"`
	Target string `json:"target"`
	Rows   int64  `json:"rows"`
}

// Result is the outcome of one fixup.
type Result struct {
	Action  audit.Action
	Applied bool
	Changes []Change
}

// Rows sums the rows affected by all changes.
func (r Result) Rows() int64 {
	var n int64
	for _, c := range r.Changes {
		n += c.Rows
	}
	return n
}

func (r *Result) add(action, target string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n > 0 {
		r.Changes = append(r.Changes, Change{Action: action, Target: target, Rows: n})
	}
	return nil
}

// Fixup performs its statements on db and reports what changed.
type Fixup func(ctx context.Context, db storage.DB) (Result, error)

type Authorizer interface {
	Authorize(action string, c guard.Confirmation) error
}

type Recorder interface {
	Record(ctx context.Context, db storage.DB, e audit.Entry) error
}

// Executor runs fixups with the production guard and the audit log. Open is
// called only after the guard has passed, so a refused fixup never connects.
type Executor struct {
	Open   func(ctx context.Context) (storage.TxBeginner, error)
	Guard  Authorizer
	Audit  Recorder
	Logger *slog.Logger
	Actor  string
	Target string // host/database recorded in the audit log
}

// Run executes fn. A dry run (apply=false) runs every statement and rolls
// back. An applied run must pass the guard first and is audited inside the
// same transaction.
func (e *Executor) Run(ctx context.Context, action audit.Action, apply bool, confirm guard.Confirmation, fn Fixup) (Result, error) {
	if apply {
		if err := e.Guard.Authorize(strings.ToLower(string(action)), confirm); err != nil {
			return Result{}, err
		}
	}

	db, err := e.Open(ctx)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = storage.WithDryRun(ctx, db, apply, func(tx *sql.Tx) error {
		var err error
		res, err = fn(ctx, tx)
		if err != nil {
			return err
		}
		if !apply || len(res.Changes) == 0 {
			return nil
		}
		return e.Audit.Record(ctx, tx, audit.Entry{
			Actor:        e.Actor,
			Action:       action,
			Target:       e.Target,
			RowsAffected: res.Rows(),
			Details:      map[string]any{"changes": res.Changes},
		})
	})
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", strings.ToLower(string(action)), err)
	}

	res.Action = action
	res.Applied = apply
	e.Logger.Info("fixup_finished",
		"action", action,
		"applied", apply,
		"changes", len(res.Changes),
		"rows", res.Rows(),
	)
	return res, nil
}

// placeholders returns "$start, $start+1, ..." for n parameters.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
