package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivityEntry is one line in a trip's recent-activity feed
// ("Alice joined trip collaboration", "Bob updated budget", ...).
// Entries are append-only and the stored list is trimmed to a bounded
// length at write time; the oldest entries are dropped.
type ActivityEntry struct {
	TripID    uuid.UUID `json:"trip_id"`
	UserID    uuid.UUID `json:"user_id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultActivityLimit is the read-side default for "recent" activity
// and the write-side cap when no other bound is configured.
const DefaultActivityLimit = 20
