package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wayra/wayra-collab/internal/domain"
)

// ActivityLog is the bounded per-trip recent-activity feed.
// Entries are pushed to the head of a Redis list and the list is trimmed in
// the same pipeline, so the bound holds at write time: appending the N+1th
// entry drops the oldest one.
type ActivityLog struct {
	client *redis.Client
	prefix string
	max    int
}

// NewActivityLog creates an ActivityLog capped at max entries per trip.
// max <= 0 falls back to domain.DefaultActivityLimit.
func NewActivityLog(client *redis.Client, prefix string, max int) *ActivityLog {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if max <= 0 {
		max = domain.DefaultActivityLimit
	}
	return &ActivityLog{client: client, prefix: prefix, max: max}
}

func (l *ActivityLog) key(tripID uuid.UUID) string {
	return l.prefix + "activity:" + tripID.String()
}

// Append adds an entry to the head of the trip's feed and trims the feed to
// the configured bound in one pipeline.
func (l *ActivityLog) Append(ctx context.Context, tripID uuid.UUID, entry domain.ActivityEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("store.ActivityLog.Append: marshal: %w", err)
	}

	pipe := l.client.TxPipeline()
	pipe.LPush(ctx, l.key(tripID), data)
	pipe.LTrim(ctx, l.key(tripID), 0, int64(l.max-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store.ActivityLog.Append: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
// limit <= 0 falls back to domain.DefaultActivityLimit.
func (l *ActivityLog) Recent(ctx context.Context, tripID uuid.UUID, limit int) ([]domain.ActivityEntry, error) {
	if limit <= 0 {
		limit = domain.DefaultActivityLimit
	}

	raw, err := l.client.LRange(ctx, l.key(tripID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("store.ActivityLog.Recent: %w", err)
	}

	entries := make([]domain.ActivityEntry, 0, len(raw))
	for i, val := range raw {
		var e domain.ActivityEntry
		if err := json.Unmarshal([]byte(val), &e); err != nil {
			return nil, fmt.Errorf("store.ActivityLog.Recent: unmarshal entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
