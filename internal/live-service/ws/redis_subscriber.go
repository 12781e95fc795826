package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StartRedisSubscriber escuta o canal Redis Pub/Sub e repassa as
// atualizações aos clientes WebSocket via Hub
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) {
	sub := r.Subscribe(ctx, channel)
	go func() {
		defer sub.Close()
		Forward(ctx, sub.Channel(), hub, log)
	}()
}

// Forward consome mensagens até o contexto terminar ou o canal fechar
func Forward(ctx context.Context, ch <-chan *redis.Message, hub *Hub, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg == nil {
				continue
			}
			var upd MarketUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &upd); err != nil || upd.MarketID == "" {
				log.Warn("ws subscriber invalid payload", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			hub.Broadcast(upd)
		}
	}
}
