package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/pump-rug-market-poc/pkg/contracts/events"
)

// RedisCache guarda a visão ao vivo de cada mercado no Redis
// Client: cliente Redis
// TTL: tempo de expiração dos registros
type RedisCache struct {
	Client redis.Cmdable
	TTL    time.Duration
}

func NewRedisCache(c redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: c, TTL: ttl}
}

// Key é a chave Redis da visão de um mercado; o live-service lê a mesma
func Key(marketID string) string { return "market:live:" + marketID }

// SetLive grava a visão se ela não for mais velha que a armazenada.
// Eventos de um mercado chegam pela mesma partição, então um único
// consumidor escreve cada chave.
func (r *RedisCache) SetLive(ctx context.Context, v events.MarketView) (bool, error) {
	cur, err := r.GetLive(ctx, v.ID)
	if err != nil {
		return false, err
	}
	if cur != nil && cur.Version > v.Version {
		return false, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("marshal market view: %w", err)
	}
	if err := r.Client.Set(ctx, Key(v.ID), b, r.TTL).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// GetLive retorna nil sem erro quando a chave não existe
func (r *RedisCache) GetLive(ctx context.Context, marketID string) (*events.MarketView, error) {
	b, err := r.Client.Get(ctx, Key(marketID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v events.MarketView
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode cached market %s: %w", marketID, err)
	}
	return &v, nil
}
