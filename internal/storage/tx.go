package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// errDryRun is returned by the callback wrapper to force a rollback.
var errDryRun = errors.New("dry run")

// WithTx executes fn within a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
//
// Example usage:
//
//	err := storage.WithTx(ctx, db, func(tx *sql.Tx) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE payments SET currency = $1 WHERE currency IS NULL", "NGN")
//	    return err
//	})
func WithTx(ctx context.Context, db TxBeginner, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback is a no-op after Commit

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// WithDryRun executes fn within a transaction that is committed only when
// apply is true. With apply=false every statement runs, RowsAffected is real,
// and nothing is persisted.
func WithDryRun(ctx context.Context, db TxBeginner, apply bool, fn func(tx *sql.Tx) error) error {
	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		if !apply {
			return errDryRun
		}
		return nil
	})
	if errors.Is(err, errDryRun) {
		return nil
	}
	return err
}
