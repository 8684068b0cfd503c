// Package db owns the Postgres connection pool and the request-scoped
// execution handle the stores run their statements through.
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskvault/internal/identity"
)

// Querier is the statement surface shared by the pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Runner executes statement groups. Do may autocommit each statement; Tx
// commits all of fn or none of it.
type Runner interface {
	Do(ctx context.Context, fn func(q Querier) error) error
	Tx(ctx context.Context, fn func(q Querier) error) error
}

var _ Runner = (*DB)(nil)

// Connect opens a pool against url and verifies it with a ping.
func Connect(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// DB runs statements on behalf of the caller found on the context.
type DB struct {
	pool         *pgxpool.Pool
	bindIdentity bool
	log          *slog.Logger
}

// New wraps pool. With bindIdentity set, every call carrying an identity
// runs in a transaction whose request.jwt.claims setting names the caller,
// so row-level policies see who is writing.
func New(pool *pgxpool.Pool, bindIdentity bool, log *slog.Logger) *DB {
	if log == nil {
		log = slog.Default()
	}
	return &DB{pool: pool, bindIdentity: bindIdentity, log: log}
}

// Pool exposes the underlying pool.
func (d *DB) Pool() *pgxpool.Pool { return d.pool }

// Do runs fn. When identity binding is on and ctx carries an identity, fn
// runs inside a transaction with the identity bound; otherwise it runs
// directly against the pool.
func (d *DB) Do(ctx context.Context, fn func(q Querier) error) error {
	if _, ok := identity.FromContext(ctx); d.bindIdentity && ok {
		return d.Tx(ctx, fn)
	}
	return fn(d.pool)
}

// Tx runs fn in a transaction, binding the caller identity first when
// enabled. The binding is transaction-local, so it is released on commit
// and on every rollback path.
func (d *DB) Tx(ctx context.Context, fn func(q Querier) error) (err error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			d.log.Warn("rollback failed", "error", rbErr)
		}
	}()

	if id, ok := identity.FromContext(ctx); d.bindIdentity && ok {
		if _, err := tx.Exec(ctx, `SELECT set_config('request.jwt.claims', $1, true)`, id.Claims()); err != nil {
			return fmt.Errorf("bind identity: %w", err)
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
