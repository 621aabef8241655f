package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectPostgres opens a pool and pings it once. maxConns <= 0 keeps the default of 10.
func ConnectPostgres(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MaxConns = 10
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	// fail fast at startup instead of on the first booking
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// ConnectAndMigrate is what the binaries call on startup.
func ConnectAndMigrate(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, int, error) {
	pool, err := ConnectPostgres(ctx, dsn, maxConns)
	if err != nil {
		return nil, 0, err
	}
	n, err := NewMigrator(pool).Up(ctx)
	if err != nil {
		pool.Close()
		return nil, 0, fmt.Errorf("migrate: %w", err)
	}
	return pool, n, nil
}
