package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/openclaw/widget-session-server/internal/model"
	redisclient "github.com/openclaw/widget-session-server/internal/redis"
)

// Sink receives session lifecycle events.
type Sink interface {
	Record(ctx context.Context, event model.SessionEvent) error
}

// RedisPublisher publishes lifecycle events on the merchant's session channel
// so downstream consumers can release per-session state.
type RedisPublisher struct {
	client redis.UniversalClient
}

func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Record(ctx context.Context, event model.SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.SessionChannel(event.MerchantID)
	return p.client.Publish(ctx, channel, data).Err()
}
