package pubsub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/pump-rug-market-poc/pkg/contracts/events"
)

type RedisBroadcaster struct {
	r       redis.Cmdable
	channel string
}

func NewRedisBroadcaster(r redis.Cmdable, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{r: r, channel: channel}
}

// WSUpdate é o payload repassado aos clientes WS do live-service
type WSUpdate struct {
	MarketID string          `json:"marketId"`
	Type     string          `json:"type"`
	Payload  events.Envelope `json:"payload"`
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, ev events.Envelope) error {
	msg, err := json.Marshal(WSUpdate{MarketID: ev.MarketID, Type: ev.Type, Payload: ev})
	if err != nil {
		return err
	}
	return b.r.Publish(ctx, b.channel, msg).Err()
}
