package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClientWithBackoff pings until Redis answers or ctx ends, doubling the
// wait between attempts up to 5s.
func NewClientWithBackoff(ctx context.Context, cfg Config) (*redis.Client, error) {
	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	for {
		err := rdb.Ping(ctx).Err()
		if err == nil {
			return rdb, nil
		}
		select {
		case <-ctx.Done():
			_ = rdb.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
