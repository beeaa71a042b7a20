package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const connectTimeout = 3 * time.Second

// NewPool creates and pings a connection pool. maxConns of 0 keeps the
// pgxpool default; the change listener holds one connection for itself
func NewPool(parentCtx context.Context, dburl string, maxConns int32) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(parentCtx, connectTimeout)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dburl)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
