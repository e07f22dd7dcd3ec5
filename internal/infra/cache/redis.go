package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyNamespace = "fp"

// cmdable is the subset of the go-redis client the cache needs.
type cmdable interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// Redis shares the record cache across instances. TTLs are delegated to
// Redis; every error is logged and treated as a miss, since the cache is
// never the source of truth.
type Redis struct {
	store  cmdable
	raw    *redis.Client
	logger *zap.Logger
}

// RedisConfig carries the connection settings.
type RedisConfig struct {
	URL          string
	Address      string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedis connects and verifies the server with a ping.
func NewRedis(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*Redis, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{store: raw, raw: raw, logger: logger}, nil
}

// NewRedisWithClient wraps an existing client (tests, shared pools).
func NewRedisWithClient(client *redis.Client, logger *zap.Logger) *Redis {
	return &Redis{store: client, raw: client, logger: logger}
}

func optionsFromConfig(cfg RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Get returns the value at key.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.store.Get(ctx, c.buildKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache: redis get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return b, true
}

// Set stores value with ttl (0 = no expiry).
func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.store.Set(ctx, c.buildKey(key), value, ttl).Err(); err != nil {
		c.logger.Warn("cache: redis set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes key.
func (c *Redis) Delete(ctx context.Context, key string) {
	if err := c.store.Del(ctx, c.buildKey(key)).Err(); err != nil {
		c.logger.Warn("cache: redis del failed", zap.String("key", key), zap.Error(err))
	}
}

// Clear removes every key of the namespace.
func (c *Redis) Clear(ctx context.Context) {
	keys := c.scan(ctx)
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.buildKey(k)
	}
	if err := c.store.Del(ctx, full...).Err(); err != nil {
		c.logger.Warn("cache: redis clear failed", zap.Int("keys", len(full)), zap.Error(err))
	}
}

// Keys lists live keys of the namespace, without the prefix.
func (c *Redis) Keys(ctx context.Context) []string {
	keys := c.scan(ctx)
	sort.Strings(keys)
	return keys
}

// Ping verifies the connection.
func (c *Redis) Ping(ctx context.Context) error {
	return c.store.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (c *Redis) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Redis) scan(ctx context.Context) []string {
	prefix := keyNamespace + ":"
	var (
		cursor uint64
		out    []string
	)
	for {
		keys, next, err := c.store.Scan(ctx, cursor, prefix+"*", 200).Result()
		if err != nil {
			c.logger.Warn("cache: redis scan failed", zap.Error(err))
			return out
		}
		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, prefix))
		}
		if next == 0 {
			return out
		}
		cursor = next
	}
}

func (c *Redis) buildKey(key string) string {
	return keyNamespace + ":" + strings.TrimSpace(key)
}
