package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// RedisNotifier shares events between instances through a Redis channel.
// Every message on the channel, including our own, is relayed into the local
// hub by Run.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	hub     *Hub
}

func NewRedisNotifier(client *redis.Client, channel string, hub *Hub) *RedisNotifier {
	return &RedisNotifier{
		client:  client,
		channel: channel,
		hub:     hub,
	}
}

func (r *RedisNotifier) Publish(kind string, f FileEvent) {
	data, err := json.Marshal(Event{Kind: kind, File: f, At: time.Now().UTC()})
	if err != nil {
		zap.L().Error("Failed to encode event", zap.String("kind", kind), zap.Error(err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
			zap.L().Warn("Failed to publish event to redis", zap.String("kind", kind), zap.Error(err))
		}
	}()
}

// Run relays channel messages into the hub until ctx is done
func (r *RedisNotifier) Run(ctx context.Context) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	zap.L().Debug("Relaying redis events", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				zap.L().Warn("Dropping malformed event", zap.Error(err))
				continue
			}

			r.hub.Deliver(e)
		}
	}
}
