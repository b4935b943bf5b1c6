package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/reward-ticket-service/pkg/backoff"
)

// TxQuerier is the query surface shared by *pgxpool.Pool and pgx.Tx, so
// repository reads run the same inside or outside a transaction.
type TxQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// NewPool opens a pgx pool for dsn and waits until it answers a ping,
// retrying with backoff.DefaultBase up to maxRetries attempts.
func NewPool(ctx context.Context, dsn string, maxRetries int) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	return backoff.Connect(ctx, "postgres", maxRetries, backoff.DefaultBase, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping failed: %w", err)
		}
		return pool, nil
	})
}
