package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis channel frames are published on.
const DefaultChannel = "trajectory:frames"

// redisClient is the subset of *redis.Client the publisher uses.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes each frame as JSON on a pub/sub channel.
type RedisPublisher struct {
	client  redisClient
	channel string
}

// NewRedisPublisher connects to the Redis server at url (redis://host:port/db)
// and verifies the connection.
func NewRedisPublisher(ctx context.Context, url, channel string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return newRedisPublisher(client, channel), nil
}

func newRedisPublisher(client redisClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Channel returns the channel frames are published on.
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// Publish sends one frame and returns the number of subscribers that
// received it.
func (p *RedisPublisher) Publish(ctx context.Context, f *Frame) (int64, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal frame %d: %w", f.Frame, err)
	}
	n, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish frame %d: %w", f.Frame, err)
	}
	return n, nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
