// Package reportcache keeps computed reports in redis.
package reportcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

const (
	defaultTTL    = 5 * time.Minute
	defaultPrefix = "reports:"
)

// Cache stores JSON encoded values under a key prefix with a TTL. A Cache
// without a client is disabled: Get always misses and Set does nothing.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// New connects to redis. An empty Addr returns a disabled cache.
func New(ctx context.Context, c *Config) (*Cache, error) {
	cache := &Cache{
		ttl:    c.TTL,
		prefix: c.Prefix,
	}
	if cache.ttl <= 0 {
		cache.ttl = defaultTTL
	}
	if cache.prefix == "" {
		cache.prefix = defaultPrefix
	}
	if c.Addr == "" {
		slog.Default().InfoContext(ctx, "report cache disabled")
		return cache, nil
	}

	cache.client = redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})
	if err := cache.client.Ping(ctx).Err(); err != nil {
		cache.client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Default().InfoContext(ctx, "connected to redis", slog.String("addr", c.Addr))
	return cache, nil
}

// Key derives a cache key from any JSON encodable value.
func Key(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("can't marshal cache key: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("can't get %s: %w", key, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("can't decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, v any) error {
	if !c.Enabled() {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("can't encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.prefix+key, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("can't set %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}
