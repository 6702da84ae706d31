package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classbook/internal/config"

	"github.com/redis/go-redis/v9"
)

const throttlePrefix = "classbook:throttle:"

var errNoRedis = errors.New("redis client is not configured")

// RedisThrottleRepository keeps one counter per key. The first hit in a
// window arms the TTL, so the window is fixed rather than sliding.
type RedisThrottleRepository struct {
	client *redis.Client
}

// NewRedisClient собирает клиент из секции redis конфига.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisThrottleRepository(client *redis.Client) *RedisThrottleRepository {
	return &RedisThrottleRepository{client: client}
}

func (r *RedisThrottleRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNoRedis
	}
	k := throttlePrefix + key

	var hits *redis.IntCmd
	var ttl *redis.DurationCmd
	if _, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		hits = p.Incr(ctx, k)
		ttl = p.PTTL(ctx, k)
		return nil
	}); err != nil {
		return false, fmt.Errorf("throttle %s: %w", key, err)
	}

	// -1: ключ без TTL, значит окно только что открылось.
	if ttl.Val() < 0 {
		if err := r.client.PExpire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("throttle %s: arm window: %w", key, err)
		}
	}
	return hits.Val() <= int64(limit), nil
}

func (r *RedisThrottleRepository) Reset(ctx context.Context, key string) error {
	if r.client == nil {
		return errNoRedis
	}
	if err := r.client.Del(ctx, throttlePrefix+key).Err(); err != nil {
		return fmt.Errorf("throttle %s: reset: %w", key, err)
	}
	return nil
}

// Ping fails fast when Redis is configured but unreachable.
func Ping(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return errNoRedis
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
