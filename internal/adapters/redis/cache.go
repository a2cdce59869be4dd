// Package redis holds the Redis-backed job leases and the HTTP idempotency
// store.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Acquire takes the lease on key for owner unless somebody else holds it.
func (c *Cache) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	res := c.client.SetNX(ctx, key, owner, ttl)
	return res.Val(), res.Err()
}

// releaseScript deletes the key only while owner still holds it, so a lease
// that expired and was re-acquired elsewhere is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (c *Cache) Release(ctx context.Context, key, owner string) error {
	return releaseScript.Run(ctx, c.client, []string{key}, owner).Err()
}
