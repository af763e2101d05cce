// Package store contains the Redis-backed shared state for collaboration:
// the presence map, the bounded activity feed, and the trip read cache.
// Each operation is a single atomic Redis call (or one pipeline), so no
// cross-entry locking is needed — last writer wins by design.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wayra/wayra-collab/internal/domain"
)

// DefaultKeyPrefix namespaces all collaboration keys in Redis.
const DefaultKeyPrefix = "collab:"

// PresenceStore is the authoritative "who is viewing which trip" map.
// Entries live in a hash per trip, keyed by user id: a re-join from a second
// device overwrites the first entry wholesale. Entries have no TTL — they are
// removed only by an explicit leave or the disconnect cleanup path.
type PresenceStore struct {
	client *redis.Client
	prefix string
}

// NewPresenceStore creates a PresenceStore on the given client.
// An empty prefix falls back to DefaultKeyPrefix. Passing a client rather
// than an address keeps the store testable with miniredis.
func NewPresenceStore(client *redis.Client, prefix string) *PresenceStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &PresenceStore{client: client, prefix: prefix}
}

func (s *PresenceStore) key(tripID uuid.UUID) string {
	return s.prefix + "presence:" + tripID.String()
}

// Set upserts the presence entry for (trip, user). No merge: the stored
// entry is replaced wholesale.
func (s *PresenceStore) Set(ctx context.Context, tripID uuid.UUID, entry domain.PresenceEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("store.PresenceStore.Set: marshal: %w", err)
	}
	if err := s.client.HSet(ctx, s.key(tripID), entry.UserID.String(), data).Err(); err != nil {
		return fmt.Errorf("store.PresenceStore.Set: %w", err)
	}
	return nil
}

// All returns every current presence entry for the trip.
// Ordering is unspecified. A trip with no viewers yields an empty slice.
func (s *PresenceStore) All(ctx context.Context, tripID uuid.UUID) ([]domain.PresenceEntry, error) {
	raw, err := s.client.HGetAll(ctx, s.key(tripID)).Result()
	if err != nil {
		return nil, fmt.Errorf("store.PresenceStore.All: %w", err)
	}

	entries := make([]domain.PresenceEntry, 0, len(raw))
	for field, val := range raw {
		var e domain.PresenceEntry
		if err := json.Unmarshal([]byte(val), &e); err != nil {
			return nil, fmt.Errorf("store.PresenceStore.All: unmarshal entry %s: %w", field, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Remove deletes the presence entry for (trip, user).
// Removing an entry that does not exist is not an error.
func (s *PresenceStore) Remove(ctx context.Context, tripID, userID uuid.UUID) error {
	if err := s.client.HDel(ctx, s.key(tripID), userID.String()).Err(); err != nil {
		return fmt.Errorf("store.PresenceStore.Remove: %w", err)
	}
	return nil
}
