package feed

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/bolao-facil/pkg/contracts/events"
)

// RedisBroadcaster publica mensagens do painel no Redis Pub/Sub. Cada instância
// do invite-service assina o canal e repassa aos seus clientes WebSocket.
type RedisBroadcaster struct {
	r       *redis.Client
	channel string
}

func NewRedisBroadcaster(r *redis.Client, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{r: r, channel: channel}
}

func (b *RedisBroadcaster) PublishFeed(ctx context.Context, msg events.FeedMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.r.Publish(ctx, b.channel, payload).Err()
}
