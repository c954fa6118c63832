package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const minPoll = 10 * time.Millisecond

// RedisGate spaces calls across processes sharing one Redis. Each call
// claims a key that expires after Delay; callers that lose the claim wait
// out the remaining TTL and try again.
type RedisGate struct {
	Client *redis.Client
	Key    string
	Delay  time.Duration
}

// NewRedisGate creates a gate keyed under prefix.
func NewRedisGate(client *redis.Client, prefix string, delay time.Duration) *RedisGate {
	if prefix == "" {
		prefix = "screener"
	}
	return &RedisGate{Client: client, Key: prefix + ":ratelimit", Delay: delay}
}

// Wait blocks until this process holds the slot or ctx is done.
func (g *RedisGate) Wait(ctx context.Context) error {
	if g.Delay <= 0 {
		return ctx.Err()
	}
	for {
		ok, err := g.Client.SetNX(ctx, g.Key, 1, g.Delay).Result()
		if err != nil {
			return fmt.Errorf("redis gate: %w", err)
		}
		if ok {
			return nil
		}

		ttl, err := g.Client.PTTL(ctx, g.Key).Result()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("redis gate ttl: %w", err)
		}
		if ttl < minPoll {
			ttl = minPoll
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ttl):
		}
	}
}

// Close releases the underlying client.
func (g *RedisGate) Close() error {
	return g.Client.Close()
}
