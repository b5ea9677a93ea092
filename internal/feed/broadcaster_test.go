package feed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/radieske/bolao-facil/pkg/contracts/events"
)

func TestPublishFeedReachesSubscribers(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sub := rdb.Subscribe(ctx, "feed-test")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	b := NewRedisBroadcaster(rdb, "feed-test")
	require.NoError(t, b.PublishFeed(ctx, events.FeedMessage{Type: "bet_placed", Payload: events.BetPlaced{InviteID: "inv-1"}}))

	select {
	case msg := <-sub.Channel():
		var got struct {
			Type    string           `json:"type"`
			Payload events.BetPlaced `json:"payload"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		require.Equal(t, "bet_placed", got.Type)
		require.Equal(t, "inv-1", got.Payload.InviteID)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}
