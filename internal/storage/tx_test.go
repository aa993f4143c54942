package storage_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Jeffreasy/MarketplaceOps/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE payments`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := storage.WithTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE payments SET currency = 'NGN'")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := storage.WithTx(ctx, db, func(tx *sql.Tx) error {
		return assert.AnError
	})

	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithDryRun(t *testing.T) {
	tests := []struct {
		name   string
		apply  bool
		expect func(mock sqlmock.Sqlmock)
	}{
		{
			name:  "dry run rolls back",
			apply: false,
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`UPDATE services`).WillReturnResult(sqlmock.NewResult(0, 5))
				mock.ExpectRollback()
			},
		},
		{
			name:  "apply commits",
			apply: true,
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`UPDATE services`).WillReturnResult(sqlmock.NewResult(0, 5))
				mock.ExpectCommit()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			ctx := context.Background()
			tt.expect(mock)

			var affected int64
			err := storage.WithDryRun(ctx, db, tt.apply, func(tx *sql.Tx) error {
				res, err := tx.ExecContext(ctx, "UPDATE services SET is_active = true")
				if err != nil {
					return err
				}
				affected, err = res.RowsAffected()
				return err
			})

			require.NoError(t, err)
			assert.Equal(t, int64(5), affected)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
