package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool describes how to open a connection pool.
type Pool struct {
	Config     *pgxpool.Config // Takes precedence over ConnString
	ConnString string          // Used if Config is nil
}

var ErrNoConnConfig = errors.New("either Config or ConnString must be provided")

// NewPool opens a pool and pings it once.
func NewPool(ctx context.Context, cfg Pool) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	var err error

	switch {
	case cfg.Config != nil:
		pool, err = pgxpool.NewWithConfig(ctx, cfg.Config)
	case cfg.ConnString != "":
		pool, err = pgxpool.New(ctx, cfg.ConnString)
	default:
		return nil, fmt.Errorf("pgx: %w", ErrNoConnConfig)
	}

	if err != nil {
		return nil, fmt.Errorf("pgx: creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx: ping connection: %w", err)
	}

	return pool, nil
}

// WithTx runs fn inside a transaction on conn. The transaction is committed
// when fn returns nil and rolled back otherwise.
func WithTx(ctx context.Context, conn Conn, fn func(tx pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgx: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgx: commit: %w", err)
	}
	return nil
}
