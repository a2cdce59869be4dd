package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "idemp:"

// Idempotency stores replayable responses under caller-supplied keys.
type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

// Get returns nil, nil when nothing is stored under key.
func (i *Idempotency) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := i.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (i *Idempotency) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return i.client.Set(ctx, idempotencyPrefix+key, data, ttl).Err()
}

// Claim marks key as in flight. It reports false when the key is already
// claimed or holds a stored response.
func (i *Idempotency) Claim(ctx context.Context, key string, marker []byte, ttl time.Duration) (bool, error) {
	return i.client.SetNX(ctx, idempotencyPrefix+key, marker, ttl).Result()
}

func (i *Idempotency) Forget(ctx context.Context, key string) error {
	return i.client.Del(ctx, idempotencyPrefix+key).Err()
}
