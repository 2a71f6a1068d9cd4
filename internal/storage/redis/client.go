package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aeo-tracker/backend/internal/storage/slots"
	"github.com/aeo-tracker/backend/pkg/logger"
)

// Client persists store slots as plain Redis strings under a key prefix.
type Client struct {
	client   *redis.Client
	prefix   string
	maxBytes int
}

func NewClient(host string, port int, password string, db int, prefix string, maxBytes int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized",
		zap.String("addr", fmt.Sprintf("%s:%d", host, port)),
		zap.String("prefix", prefix),
	)

	return NewWithClient(client, prefix, maxBytes), nil
}

// NewWithClient wraps an existing go-redis client.
func NewWithClient(client *redis.Client, prefix string, maxBytes int) *Client {
	return &Client{client: client, prefix: prefix, maxBytes: maxBytes}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) slotKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

func (c *Client) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.slotKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load slot %s: %w: %v", key, slots.ErrUnavailable, err)
	}

	return data, nil
}

func (c *Client) Store(ctx context.Context, key string, data []byte) error {
	if c.maxBytes > 0 && len(data) > c.maxBytes {
		return fmt.Errorf("slot %s needs %d bytes, quota is %d: %w", key, len(data), c.maxBytes, slots.ErrQuotaExceeded)
	}

	err := c.client.Set(ctx, c.slotKey(key), data, 0).Err()
	if err != nil {
		// Redis refuses writes past maxmemory with an OOM error.
		if isOOM(err) {
			return fmt.Errorf("failed to store slot %s: %w: %v", key, slots.ErrQuotaExceeded, err)
		}
		return fmt.Errorf("failed to store slot %s: %w: %v", key, slots.ErrUnavailable, err)
	}

	logger.Debug("Slot stored", zap.String("key", c.slotKey(key)), zap.Int("bytes", len(data)))
	return nil
}

func isOOM(err error) bool {
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		return strings.HasPrefix(redisErr.Error(), "OOM")
	}
	return false
}
