// Package migrations holds the SQL owned by the toolkit. It is tracked in
// its own table so it never interferes with Prisma's _prisma_migrations.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var files embed.FS

// Table records applied toolkit migrations.
const Table = "ops_schema_migrations"

// Migrator holds one connection from the caller's pool until Close. A pgx
// pool cannot shut down while that connection is checked out.
type Migrator struct {
	m      *migrate.Migrate
	logger *slog.Logger
}

// New prepares a migrator on a connection taken from db. db stays owned by
// the caller; Close releases the connection but never closes db.
func New(ctx context.Context, db *sql.DB, logger *slog.Logger) (*Migrator, error) {
	src, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("failed to acquire migration connection: %w", err)
	}

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{MigrationsTable: Table})
	if err != nil {
		_ = conn.Close()
		_ = src.Close()
		return nil, fmt.Errorf("failed to init migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		_ = src.Close()
		return nil, fmt.Errorf("migration init failed: %w", err)
	}
	m.Log = logAdapter{logger: logger}

	return &Migrator{m: m, logger: logger}, nil
}

// Close releases the migration connection and the embedded source.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		return fmt.Errorf("failed to close migrator: %w", err)
	}
	return nil
}

// Up applies all pending migrations. It reports false when there was nothing to do.
func (mg *Migrator) Up() (bool, error) {
	return changed(mg.m.Up())
}

// Down rolls back steps migrations.
func (mg *Migrator) Down(steps int) (bool, error) {
	if steps < 1 {
		return false, fmt.Errorf("steps must be positive, got %d", steps)
	}
	return changed(mg.m.Steps(-steps))
}

// Version returns the applied version; ok is false when nothing is applied.
func (mg *Migrator) Version() (version uint, dirty bool, ok bool, err error) {
	version, dirty, err = mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("failed to read version: %w", err)
	}
	return version, dirty, true, nil
}

func changed(err error) (bool, error) {
	if errors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("migration failed: %w", err)
	}
	return true, nil
}

// Files lists the embedded migration file names in order.
func Files() ([]string, error) {
	entries, err := files.ReadDir(".")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// logAdapter routes golang-migrate output to slog.
type logAdapter struct {
	logger *slog.Logger
}

func (l logAdapter) Printf(format string, v ...any) {
	l.logger.Debug("migrate", "msg", strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l logAdapter) Verbose() bool {
	return false
}
