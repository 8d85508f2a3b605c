package redis

import (
	"context"
	"fmt"
	"time"

	"underwriting-service/internal/config"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis connection backing the damage oracle cache.
type Client struct {
	client *redis.Client
}

// NewRedisClient connects with short timeouts: cache lookups sit on the
// payout calculation path, and a slow cache must degrade to a direct oracle
// call instead of stalling it.
func NewRedisClient(cfg config.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

func (c *Client) GetClient() *redis.Client {
	return c.client
}

// Ping reports cache reachability for the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.client.Close()
}
