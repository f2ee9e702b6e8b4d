// Package cache provides a Redis client wrapper for spend tracking and rate
// limiting. All counters are updated with Lua scripts so that increment and
// expiry happen in a single round-trip.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Cache wraps a Redis client with spend and rate-limit operations.
type Cache struct {
	client *redis.Client
}

// NewCache connects to Redis and verifies connectivity with a PING.
func NewCache(ctx context.Context, opts Options) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	log.WithField("addr", opts.Addr).Info("Connected to Redis")
	return &Cache{client: client}, nil
}

// FromClient wraps an existing client without pinging it.
func FromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Close shuts down the Redis client.
func (c *Cache) Close() error {
	if c.client != nil {
		log.Info("Closing Redis connection")
		return c.client.Close()
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SpendKey is the Redis key holding accumulated spend for an entity.
func SpendKey(scope, entityID string) string {
	return fmt.Sprintf("budget:spend:%s:%s", scope, entityID)
}

// LimitKey is the Redis key holding the spend limit for an entity.
func LimitKey(scope, entityID string) string {
	return fmt.Sprintf("budget:limit:%s:%s", scope, entityID)
}

// PeriodKey is the Redis key holding an entity's budget period in seconds.
func PeriodKey(scope, entityID string) string {
	return fmt.Sprintf("budget:period:%s:%s", scope, entityID)
}

// RateLimitKey is the Redis key of a fixed-window rate limit counter.
func RateLimitKey(client string) string {
	return "ratelimit:" + client
}

func (c *Cache) getFloat(ctx context.Context, key string) (float64, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cache: get %q: %w", key, err)
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("cache: parse %q=%q: %w", key, val, err)
	}
	return f, true, nil
}

// GetSpend returns the accumulated spend, or 0 when none is recorded.
func (c *Cache) GetSpend(ctx context.Context, scope, entityID string) (float64, error) {
	v, _, err := c.getFloat(ctx, SpendKey(scope, entityID))
	return v, err
}

// GetLimit returns the configured limit. ok is false when no limit is set.
func (c *Cache) GetLimit(ctx context.Context, scope, entityID string) (limit float64, ok bool, err error) {
	return c.getFloat(ctx, LimitKey(scope, entityID))
}

// SetLimit stores a limit that never expires. A positive period is stored
// next to it and becomes the TTL of the entity's spend key.
func (c *Cache) SetLimit(ctx context.Context, scope, entityID string, limit float64, period time.Duration) error {
	key := LimitKey(scope, entityID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, formatFloat(limit), 0)
		if secs := int64(period / time.Second); secs > 0 {
			pipe.Set(ctx, PeriodKey(scope, entityID), secs, 0)
		} else {
			pipe.Del(ctx, PeriodKey(scope, entityID))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

// GetPeriod returns the entity's budget period. ok is false when none is set.
func (c *Cache) GetPeriod(ctx context.Context, scope, entityID string) (period time.Duration, ok bool, err error) {
	secs, ok, err := c.getFloat(ctx, PeriodKey(scope, entityID))
	if err != nil || !ok || secs <= 0 {
		return 0, false, err
	}
	return time.Duration(secs) * time.Second, true, nil
}

// incrWithExpireLua atomically increments a key and sets TTL if the key has no expiry.
var incrWithExpireLua = redis.NewScript(`
	local newval = redis.call('INCRBYFLOAT', KEYS[1], ARGV[1])
	if redis.call('TTL', KEYS[1]) == -1 then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
	end
	return newval
`)

// IncrSpend atomically adds amount to the entity's spend. The key expires
// window after the first increment, which starts a new budget period.
func (c *Cache) IncrSpend(ctx context.Context, scope, entityID string, amount float64, window time.Duration) (float64, error) {
	key := SpendKey(scope, entityID)
	ttlSeconds := int(window / time.Second)
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}

	result, err := incrWithExpireLua.Run(ctx, c.client, []string{key}, formatFloat(amount), ttlSeconds).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: incr spend %q: %w", key, err)
	}

	// INCRBYFLOAT replies with a bulk string.
	switch v := result.(type) {
	case string:
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			return 0, fmt.Errorf("cache: parse incr result %q: %w", v, perr)
		}
		return f, nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("cache: unexpected result type %T from incr script", result)
	}
}

// ResetSpend clears the entity's spend.
func (c *Cache) ResetSpend(ctx context.Context, scope, entityID string) error {
	key := SpendKey(scope, entityID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: delete %q: %w", key, err)
	}
	return nil
}

// rateLimitLua sets the TTL only on the first request in the window so later
// requests do not extend it.
var rateLimitLua = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('EXPIRE', KEYS[1], ARGV[1])
	end
	return count
`)

// RateLimitCheck performs a fixed-window check for client. It returns true
// while the client is under maxRequests in the current window.
func (c *Cache) RateLimitCheck(ctx context.Context, client string, maxRequests int64, window time.Duration) (bool, error) {
	windowSeconds := int(window / time.Second)
	if windowSeconds <= 0 {
		windowSeconds = 1
	}

	count, err := rateLimitLua.Run(ctx, c.client, []string{RateLimitKey(client)}, windowSeconds).Int64()
	if err != nil {
		return false, fmt.Errorf("cache: rate limit check: %w", err)
	}
	return count <= maxRequests, nil
}

// Client returns the underlying Redis client.
func (c *Cache) Client() *redis.Client {
	return c.client
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 10, 64)
}
