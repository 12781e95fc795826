package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/pump-rug-market-poc/internal/shared/retry"
)

// ConnectRedis abre o cliente e espera o Redis responder; no compose o
// serviço pode subir antes do Redis
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	p := retry.Policy{Attempts: 5, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}
	err := retry.Do(ctx, p, func(error) bool { return true }, func(int) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return rdb, nil
}

// Ping adapta o cliente ao check de saúde
func Ping(rdb *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}
