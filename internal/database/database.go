// Package database provides the PostgreSQL pool, transactions, migrations
// and error classification for the job tracking store.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/helixir/document-review-service/internal/config"
)

// DBTX is satisfied by *DB, *pgxpool.Pool and pgx.Tx, so store code runs
// unchanged against the pool or inside a caller's transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// TxBeginner opens a transaction. On a pgx.Tx, Begin opens a savepoint.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	_ DBTX       = (*DB)(nil)
	_ TxBeginner = (*DB)(nil)
)

// DB wraps the tracking store connection pool.
type DB struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New opens the pool described by cfg and verifies it with a ping.
func New(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", Classify("connect", err))
	}

	logger = logger.With().Str("component", "database").Logger()
	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Int32("max_conns", cfg.MaxConns).
		Msg("database connection pool established")

	return &DB{pool: pool, logger: logger}, nil
}

// Close closes the pool.
func (db *DB) Close() {
	if db.pool == nil {
		return
	}
	db.pool.Close()
	db.logger.Info().Msg("database connection pool closed")
}

// Ping checks that a connection can be acquired. It backs the readiness
// checks of both servers.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		stat := db.pool.Stat()
		return fmt.Errorf("ping failed (%d/%d connections acquired): %w",
			stat.AcquiredConns(), stat.MaxConns(), Classify("ping", err))
	}
	return nil
}

// Exec implements DBTX.
func (db *DB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return db.pool.Exec(ctx, sql, args...)
}

// Query implements DBTX.
func (db *DB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}

// QueryRow implements DBTX.
func (db *DB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return db.pool.QueryRow(ctx, sql, args...)
}

// Begin implements TxBeginner.
func (db *DB) Begin(ctx context.Context) (pgx.Tx, error) {
	return db.pool.Begin(ctx)
}

// WithTx runs fn in a transaction opened on b. The transaction commits when
// fn returns nil and rolls back when fn fails or panics. Begin and commit
// failures are classified under op, so transient ones are retryable.
func WithTx(ctx context.Context, b TxBeginner, op string, fn func(tx pgx.Tx) error) error {
	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin %s transaction: %w", op, Classify(op, err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit %s transaction: %w", op, Classify(op, err))
	}
	return nil
}
