package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResultCache deduplicates retried tool calls by their caller-supplied
// request id. It is a shared store so multiple engine instances agree on
// which invocation won; entries age out after a short window.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResultCache(client *redis.Client, ttl time.Duration) *ResultCache {
	return &ResultCache{client: client, ttl: ttl}
}

func resultKey(requestID string) string {
	return "idem:result:" + requestID
}

// Get returns the cached response for a request id, if any.
func (c *ResultCache) Get(ctx context.Context, requestID string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, resultKey(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("idempotency get: %w", err)
	}
	return val, true, nil
}

// PutIfAbsent stores the response for a request id unless a concurrent
// invocation already did; the first stored payload always wins and is
// returned either way.
func (c *ResultCache) PutIfAbsent(ctx context.Context, requestID string, payload []byte) ([]byte, error) {
	key := resultKey(requestID)

	stored, err := c.client.SetNX(ctx, key, payload, c.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("idempotency put: %w", err)
	}
	if stored {
		return payload, nil
	}

	existing, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Winner expired between SetNX and Get; our payload is as good.
		return payload, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency read back: %w", err)
	}
	return existing, nil
}
