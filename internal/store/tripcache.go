package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TripCache invalidates read-cache entries for a trip after a persisted
// update. The REST API caches trip documents under "cache:trip:<id>" keys
// (optionally suffixed per view); this service only ever deletes them.
type TripCache struct {
	client *redis.Client
	prefix string
}

// NewTripCache creates a TripCache. An empty prefix defaults to "cache:trip:".
func NewTripCache(client *redis.Client, prefix string) *TripCache {
	if prefix == "" {
		prefix = "cache:trip:"
	}
	return &TripCache{client: client, prefix: prefix}
}

// Invalidate deletes every cached view of the trip.
// Deleting keys that do not exist is not an error.
func (c *TripCache) Invalidate(ctx context.Context, tripID uuid.UUID) error {
	pattern := c.prefix + tripID.String() + "*"

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("store.TripCache.Invalidate: scan: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("store.TripCache.Invalidate: del: %w", err)
	}
	return nil
}
