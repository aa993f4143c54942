package migrations

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiles_PairedUpAndDown(t *testing.T) {
	names, err := Files()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups[strings.TrimSuffix(n, ".up.sql")] = true
		case strings.HasSuffix(n, ".down.sql"):
			downs[strings.TrimSuffix(n, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", n)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestEmbeddedSource(t *testing.T) {
	src, err := iofs.New(files, ".")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	next, err := src.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)

	r, id, err := src.ReadUp(first)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "ops_audit_log", id)
}

func TestChanged(t *testing.T) {
	ok, err := changed(nil)
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = changed(migrate.ErrNoChange)
	assert.False(t, ok)
	assert.NoError(t, err)

	_, err = changed(migrate.ErrLocked)
	assert.ErrorIs(t, err, migrate.ErrLocked)
}

func TestLogAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := logAdapter{logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	l.Printf("Start buffering %d/u %s\n", 1, "ops_audit_log")

	assert.False(t, l.Verbose())
	assert.Contains(t, buf.String(), "Start buffering 1/u ops_audit_log")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// expectDriverInit queues what the postgres driver runs when it attaches to a
// connection whose migrations table already exists.
func expectDriverInit(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT CURRENT_DATABASE()")).
		WillReturnRows(sqlmock.NewRows([]string{"current_database"}).AddRow("marketplace"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT CURRENT_SCHEMA()")).
		WillReturnRows(sqlmock.NewRows([]string{"current_schema"}).AddRow("public"))
	expectLock(mock)
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.tables")).
		WithArgs("public", Table).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	expectUnlock(mock)
}

func expectLock(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_lock($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectUnlock(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectVersion(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT version, dirty FROM "public"."` + Table + `" LIMIT 1`)).
		WillReturnRows(rows)
}

func newMigrator(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Migrator) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	expectDriverInit(mock)
	m, err := New(context.Background(), db, discardLogger())
	require.NoError(t, err)
	return db, mock, m
}

func TestMigrator_CloseReleasesConnection(t *testing.T) {
	db, mock, m := newMigrator(t)

	// The pool can only shut down once this connection is back.
	assert.Equal(t, 1, db.Stats().InUse)

	require.NoError(t, m.Close())
	assert.Equal(t, 0, db.Stats().InUse)

	// Closing the migrator must leave the caller's pool usable.
	require.NoError(t, db.PingContext(context.Background()))

	mock.ExpectClose()
	require.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_Version(t *testing.T) {
	tests := []struct {
		name        string
		rows        *sqlmock.Rows
		wantVersion uint
		wantDirty   bool
		wantOK      bool
	}{
		{"applied", sqlmock.NewRows([]string{"version", "dirty"}).AddRow(int64(2), false), 2, false, true},
		{"dirty", sqlmock.NewRows([]string{"version", "dirty"}).AddRow(int64(1), true), 1, true, true},
		{"nothing applied", sqlmock.NewRows([]string{"version", "dirty"}), 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, m := newMigrator(t)
			defer db.Close()

			expectVersion(mock, tt.rows)
			version, dirty, ok, err := m.Version()
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
			assert.Equal(t, tt.wantDirty, dirty)
			assert.Equal(t, tt.wantOK, ok)

			require.NoError(t, m.Close())
			assert.Equal(t, 0, db.Stats().InUse)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMigrator_UpAtLatestVersion(t *testing.T) {
	db, mock, m := newMigrator(t)
	defer db.Close()

	expectLock(mock)
	expectVersion(mock, sqlmock.NewRows([]string{"version", "dirty"}).AddRow(int64(2), false))
	expectUnlock(mock)

	changed, err := m.Up()
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, m.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_DownRejectsSteps(t *testing.T) {
	db, mock, m := newMigrator(t)
	defer db.Close()

	_, err := m.Down(0)
	assert.ErrorContains(t, err, "steps must be positive")

	require.NoError(t, m.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNew_ReleasesConnectionOnDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT CURRENT_DATABASE()")).WillReturnError(sql.ErrConnDone)

	_, err = New(context.Background(), db, discardLogger())
	require.Error(t, err)
	assert.Equal(t, 0, db.Stats().InUse)
	assert.NoError(t, mock.ExpectationsWereMet())
}
