package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/openclaw/widget-session-server/internal/config"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), config.RedisConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// SessionChannel carries lifecycle events for a merchant's widget sessions.
func SessionChannel(merchantID string) string {
	return fmt.Sprintf("widget:sessions:%s", merchantID)
}

// RequestChannel carries validated widget requests to the conversation pipeline.
func RequestChannel(merchantID string) string {
	return fmt.Sprintf("widget:requests:%s", merchantID)
}
