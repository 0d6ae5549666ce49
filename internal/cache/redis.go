// Package cache keeps the latest per-address statistics in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"transfer-stats/internal/domain"
	"transfer-stats/internal/storage"
)

const (
	keyPrefix     = "stats:"
	computedAtKey = "stats_meta:computed_at"
)

// RedisStatsCache implements storage.StatsCache on Redis.
// Entries expire after ttl; zero ttl keeps them until overwritten.
type RedisStatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStatsCache connects to Redis and verifies the connection.
func NewRedisStatsCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStatsCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStatsCache{client: client, ttl: ttl}, nil
}

// Compile-time interface check
var _ storage.StatsCache = (*RedisStatsCache)(nil)

func statsKey(address string) string {
	return keyPrefix + address
}

// SaveStats writes every stat and the computed_at marker in one transaction.
func (c *RedisStatsCache) SaveStats(ctx context.Context, snap *domain.StatsSnapshot) error {
	if snap == nil || len(snap.Stats) == 0 {
		return nil
	}

	payloads := make([][]byte, len(snap.Stats))
	for i, s := range snap.Stats {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal stats for %s: %w", s.Address, err)
		}
		payloads[i] = data
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, s := range snap.Stats {
			pipe.Set(ctx, statsKey(s.Address), payloads[i], c.ttl)
		}
		pipe.Set(ctx, computedAtKey, snap.ComputedAt, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	return nil
}

// GetStats returns the cached stats of address, or nil on a miss.
func (c *RedisStatsCache) GetStats(ctx context.Context, address string) (*domain.UserStats, error) {
	data, err := c.client.Get(ctx, statsKey(address)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stats: %w", err)
	}

	var s domain.UserStats
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal stats: %w", err)
	}
	return &s, nil
}

// ComputedAt returns the ComputedAt of the last cached snapshot, or 0 if none.
func (c *RedisStatsCache) ComputedAt(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, computedAtKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("get computed_at: %w", err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse computed_at: %w", err)
	}
	return n, nil
}

// Close closes the Redis client.
func (c *RedisStatsCache) Close() error {
	return c.client.Close()
}
