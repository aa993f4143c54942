package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// DB is the query surface shared by *sql.DB and *sql.Tx.
// Checks and fixups accept it so they run unchanged inside a transaction
// or against sqlmock in tests.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// TxBeginner is a DB that can open transactions.
type TxBeginner interface {
	DB
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Database bundles the pgx pool with its database/sql view.
type Database struct {
	*sql.DB
	Pool *pgxpool.Pool
}

// NewPostgres creates a new connection pool to PostgreSQL.
func NewPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// One-shot commands never need more than a handful of connections.
	config.MaxConns = 4
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return pool, nil
}

// Open connects and wraps the pool as a *sql.DB.
func Open(ctx context.Context, dsn string) (*Database, error) {
	pool, err := NewPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Database{DB: stdlib.OpenDBFromPool(pool), Pool: pool}, nil
}

// Close releases the sql.DB wrapper and the underlying pool.
func (d *Database) Close() {
	_ = d.DB.Close()
	d.Pool.Close()
}
