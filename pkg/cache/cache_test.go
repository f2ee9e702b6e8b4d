package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "budget:spend:user:u1", SpendKey("user", "u1"))
	assert.Equal(t, "budget:limit:team:t9", LimitKey("team", "t9"))
	assert.Equal(t, "budget:period:user:u1", PeriodKey("user", "u1"))
	assert.Equal(t, "ratelimit:10.0.0.1", RateLimitKey("10.0.0.1"))
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "0.0012500000", formatFloat(0.00125))
	assert.Equal(t, "10.0000000000", formatFloat(10))
}

// unreachable returns a cache whose every command fails fast.
func unreachable() *Cache {
	return FromClient(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}))
}

func TestUnreachableRedis_ReturnsErrors(t *testing.T) {
	c := unreachable()
	defer c.Close()
	ctx := context.Background()

	_, err := c.GetSpend(ctx, "user", "u1")
	assert.Error(t, err)

	_, err = c.IncrSpend(ctx, "user", "u1", 0.5, time.Hour)
	assert.Error(t, err)

	assert.Error(t, c.SetLimit(ctx, "user", "u1", 5, 30*24*time.Hour))

	_, ok, err := c.GetPeriod(ctx, "user", "u1")
	assert.Error(t, err)
	assert.False(t, ok)

	_, err = c.RateLimitCheck(ctx, "client", 10, time.Minute)
	assert.Error(t, err)

	assert.Error(t, c.Ping(ctx))
}

func TestNewCache_ConnectFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	c, err := NewCache(ctx, Options{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Nil(t, c)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}
