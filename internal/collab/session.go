// Package collab implements the real-time collaboration core: the
// per-connection session state machine, the local room fanout, and the
// pipelines that turn one client's action into events for everyone else
// viewing the same trip.
package collab

import (
	"github.com/google/uuid"

	"github.com/wayra/wayra-collab/internal/domain"
)

// Emitter delivers a named event to one connected client.
// The websocket layer implements it; tests use a recording fake.
// Delivery is best-effort: implementations may drop events rather than
// block when a client cannot keep up.
type Emitter interface {
	Emit(event string, payload any)
}

// Session is the connection-scoped state for one client.
// It belongs to at most one trip room at a time; joining a new trip
// implicitly leaves the previous one. The session is owned by its
// connection's read loop — only Service methods called from that loop
// mutate it, so no locking is needed.
type Session struct {
	// ID is the connection identifier, unique per websocket connection.
	ID string

	// UserID is set on the first successful join.
	UserID uuid.UUID

	// Info is the display info the client supplied when joining.
	Info domain.UserInfo

	tripID  uuid.UUID
	emitter Emitter
}

// NewSession creates a session for a freshly opened connection.
func NewSession(emitter Emitter) *Session {
	return &Session{
		ID:      uuid.NewString(),
		emitter: emitter,
	}
}

// TripID returns the trip this session has joined, or uuid.Nil when the
// session is connected but not in any trip room.
func (s *Session) TripID() uuid.UUID {
	return s.tripID
}

// Emit sends an event to this session's client.
func (s *Session) Emit(event string, payload any) {
	if s.emitter != nil {
		s.emitter.Emit(event, payload)
	}
}
