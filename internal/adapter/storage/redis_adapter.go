package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix  = "idempotency:order:"
	defaultIdempotencyTTL = 24 * time.Hour
)

// RedisAdapter binds Idempotency-Key headers to the order they created.
type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &RedisAdapter{client: client, ttl: ttl}
}

func (r *RedisAdapter) ClaimIdempotencyKey(ctx context.Context, key, orderID string) (bool, string, error) {
	redisKey := idempotencyKeyPrefix + key

	// A key can expire between SETNX and GET, so claim at most twice.
	for i := 0; i < 2; i++ {
		ok, err := r.client.SetNX(ctx, redisKey, orderID, r.ttl).Result()
		if err != nil {
			return false, "", err
		}
		if ok {
			return true, "", nil
		}

		existing, err := r.client.Get(ctx, redisKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return false, "", err
		}
		return false, existing, nil
	}
	return false, "", errors.New("idempotency key churned while claiming")
}

func (r *RedisAdapter) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
