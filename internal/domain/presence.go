package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UserInfo is the lightweight display info a client supplies when joining.
type UserInfo struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// PresenceEntry records that a user is currently viewing a trip.
// There is at most one entry per (trip, user); a second join from another
// device overwrites the first — last writer wins, no merge.
type PresenceEntry struct {
	ConnectionID string          `json:"connection_id"`
	UserID       uuid.UUID       `json:"user_id"`
	Name         string          `json:"name"`
	AvatarURL    string          `json:"avatar_url,omitempty"`
	LastAction   string          `json:"last_action"`
	Cursor       json.RawMessage `json:"cursor,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
