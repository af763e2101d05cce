package collab

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/wayra/wayra-collab/internal/domain"
)

// Inbound event names — messages a client sends.
const (
	EventJoinTrip        = "join-trip"
	EventLeaveTrip       = "leave-trip"
	EventTripUpdate      = "trip-update"
	EventItineraryUpdate = "itinerary-update"
	EventCursorUpdate    = "cursor-update"
	EventTypingStart     = "typing-start"
	EventTypingStop      = "typing-stop"
	EventCommentAdd      = "comment-add"
	EventBudgetUpdate    = "budget-update"
	EventPing            = "ping"
)

// Outbound event names — messages the server emits.
const (
	EventError            = "error"
	EventUserJoined       = "user-joined"
	EventUserLeft         = "user-left"
	EventPresenceUpdate   = "presence-update"
	EventTripUpdated      = "trip-updated"
	EventItineraryUpdated = "itinerary-updated"
	EventCursorUpdated    = "cursor-updated"
	EventUserTyping       = "user-typing"
	EventCommentAdded     = "comment-added"
	EventBudgetUpdated    = "budget-updated"
	EventSystemMessage    = "system-message"
	EventPong             = "pong"
)

// ErrorPayload carries a human-readable failure message to the caller only.
type ErrorPayload struct {
	Message string `json:"message"`
}

// UserJoinedPayload notifies existing room members of a new viewer,
// with the refreshed presence snapshot.
type UserJoinedPayload struct {
	UserID   uuid.UUID              `json:"user_id"`
	UserInfo domain.UserInfo        `json:"user_info"`
	Presence []domain.PresenceEntry `json:"presence"`
}

// UserLeftPayload notifies remaining room members that a viewer left.
type UserLeftPayload struct {
	UserID   uuid.UUID              `json:"user_id"`
	Presence []domain.PresenceEntry `json:"presence"`
}

// PresencePayload carries the full presence snapshot, sent to a session
// right after it joins.
type PresencePayload struct {
	Presence []domain.PresenceEntry `json:"presence"`
}

// TripUpdatedPayload is broadcast to the whole room (sender included)
// after a trip update has been persisted.
type TripUpdatedPayload struct {
	TripID     uuid.UUID             `json:"trip_id"`
	UserID     uuid.UUID             `json:"user_id"`
	UpdateType domain.UpdateCategory `json:"update_type"`
	UpdateData json.RawMessage       `json:"update_data,omitempty"`
	UserInfo   domain.UserInfo       `json:"user_info"`
	Timestamp  time.Time             `json:"timestamp"`
}

// ItineraryUpdatedPayload is broadcast to the whole room for itinerary
// edits. Itinerary persistence is handled elsewhere; this subsystem only
// relays the edit.
type ItineraryUpdatedPayload struct {
	TripID        uuid.UUID       `json:"trip_id"`
	UserID        uuid.UUID       `json:"user_id"`
	Day           int             `json:"day"`
	ActivityIndex int             `json:"activity_index"`
	ActivityData  json.RawMessage `json:"activity_data,omitempty"`
	Action        string          `json:"action"`
	UserInfo      domain.UserInfo `json:"user_info"`
	Timestamp     time.Time       `json:"timestamp"`
}

// CursorPayload is broadcast to everyone in the room except the sender —
// echoing a live cursor back to its own client would cause feedback loops.
type CursorPayload struct {
	UserID uuid.UUID       `json:"user_id"`
	Cursor json.RawMessage `json:"cursor"`
}

// TypingPayload signals that a user started or stopped typing in a field.
// Like cursors, it is never echoed to the sender.
type TypingPayload struct {
	UserID uuid.UUID `json:"user_id"`
	Field  string    `json:"field"`
	Typing bool      `json:"typing"`
}

// CommentAddedPayload is broadcast to the whole room, sender included.
type CommentAddedPayload struct {
	TripID     uuid.UUID       `json:"trip_id"`
	UserID     uuid.UUID       `json:"user_id"`
	Comment    string          `json:"comment"`
	TargetType string          `json:"target_type,omitempty"`
	TargetID   string          `json:"target_id,omitempty"`
	UserInfo   domain.UserInfo `json:"user_info"`
	Timestamp  time.Time       `json:"timestamp"`
}

// BudgetUpdatedPayload is broadcast to the whole room, sender included.
type BudgetUpdatedPayload struct {
	TripID     uuid.UUID       `json:"trip_id"`
	UserID     uuid.UUID       `json:"user_id"`
	BudgetData json.RawMessage `json:"budget_data,omitempty"`
	Category   string          `json:"category,omitempty"`
	UserInfo   domain.UserInfo `json:"user_info"`
	Timestamp  time.Time       `json:"timestamp"`
}

// SystemMessagePayload is a synthetic event with no originating user,
// injected via the query surface.
type SystemMessagePayload struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PongPayload answers a ping.
type PongPayload struct {
	Timestamp time.Time `json:"timestamp"`
}
