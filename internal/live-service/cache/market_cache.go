package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	epcache "github.com/radieske/pump-rug-market-poc/internal/event-processor/cache"
	"github.com/radieske/pump-rug-market-poc/pkg/contracts/events"
)

// Cache lê a visão ao vivo gravada pelo event-processor
type Cache struct{ R redis.Cmdable }

func New(r redis.Cmdable) *Cache { return &Cache{R: r} }

func (c *Cache) GetMarket(ctx context.Context, marketID string) (*events.MarketView, bool, error) {
	b, err := c.R.Get(ctx, epcache.Key(marketID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var v events.MarketView
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false, err
	}
	return &v, true, nil
}

// SetMarket repopula o cache a partir do banco; NX para não sobrescrever
// uma visão mais nova gravada pelo processor nesse meio tempo
func (c *Cache) SetMarket(ctx context.Context, v events.MarketView, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.R.SetNX(ctx, epcache.Key(v.ID), b, ttl).Err()
}
