package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient dials and pings Redis. Callers that can run without Redis
// treat the error as a degraded start, not a fatal one.
func NewRedisClient(ctx context.Context, addr, username, password string) (*redis.Client, error) {
	rdb := newClient(addr, username, password)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return rdb, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

func newClient(addr, username, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     username,
		Password:     password,
		DB:           0,
		DialTimeout:  time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
		MaxRetries:   1,
	})
}
