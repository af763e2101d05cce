package collab

import (
	"sync"

	"github.com/google/uuid"
)

// Hub is the local-process room abstraction: which sessions are currently
// in which trip room. It only reaches sessions connected to this instance;
// the bridge extends fanout across instances.
//
// Delivery through Broadcast is at-most-once, best-effort: no retry, no
// acknowledgement, no backpressure.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[uuid.UUID]map[*Session]struct{}
	members map[*Session]uuid.UUID
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[uuid.UUID]map[*Session]struct{}),
		members: make(map[*Session]uuid.UUID),
	}
}

// Join adds the session to the trip's room. A session can be in only one
// room: if it is already in another room it is removed from that one first.
func (h *Hub) Join(tripID uuid.UUID, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.members[s]; ok {
		h.removeLocked(prev, s)
	}

	if h.rooms[tripID] == nil {
		h.rooms[tripID] = make(map[*Session]struct{})
	}
	h.rooms[tripID][s] = struct{}{}
	h.members[s] = tripID
}

// Leave removes the session from whatever room it is in.
// Leaving when not in a room is a no-op.
func (h *Hub) Leave(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if tripID, ok := h.members[s]; ok {
		h.removeLocked(tripID, s)
	}
}

func (h *Hub) removeLocked(tripID uuid.UUID, s *Session) {
	delete(h.members, s)
	if room := h.rooms[tripID]; room != nil {
		delete(room, s)
		if len(room) == 0 {
			delete(h.rooms, tripID)
		}
	}
}

// Broadcast delivers event/payload to every session in the trip's room,
// optionally skipping the originating session.
func (h *Hub) Broadcast(tripID uuid.UUID, event string, payload any, exclude *Session) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.rooms[tripID] {
		if s == exclude {
			continue
		}
		s.Emit(event, payload)
	}
}

// RoomSize returns the number of sessions currently in the trip's room.
func (h *Hub) RoomSize(tripID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[tripID])
}

// Sessions returns a snapshot of every session in any room.
func (h *Hub) Sessions() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Session, 0, len(h.members))
	for s := range h.members {
		out = append(out, s)
	}
	return out
}
