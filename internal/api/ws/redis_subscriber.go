package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/bolao-facil/pkg/contracts/events"
)

// StartRedisSubscriber escuta o canal do feed no Redis Pub/Sub e repassa cada
// mensagem ao Hub. Encerra quando o contexto é cancelado.
func StartRedisSubscriber(ctx context.Context, log *zap.Logger, r *redis.Client, channel string, hub *Hub) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg == nil {
					continue
				}
				var fm events.FeedMessage
				if err := json.Unmarshal([]byte(msg.Payload), &fm); err != nil {
					log.Warn("ws subscriber unmarshal error", zap.String("channel", channel), zap.Error(err))
					continue
				}
				hub.Broadcast(fm)
			}
		}
	}()
}
