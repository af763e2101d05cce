package collab_test

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayra/wayra-collab/internal/collab"
)

// recorder is a test Emitter that records every event it receives.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	name    string
	payload any
}

func (r *recorder) Emit(name string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{name: name, payload: payload})
}

// names returns the event names received so far, in order.
func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.name
	}
	return out
}

// payloads returns every payload received for the named event.
func (r *recorder) payloads(name string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.events {
		if e.name == name {
			out = append(out, e.payload)
		}
	}
	return out
}

// reset discards everything recorded so far.
func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func newMember(t *testing.T, h *collab.Hub, tripID uuid.UUID) (*collab.Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	s := collab.NewSession(rec)
	h.Join(tripID, s)
	return s, rec
}

func TestHub_BroadcastReachesRoomMembers(t *testing.T) {
	h := collab.NewHub()
	tripID := uuid.New()

	_, rec1 := newMember(t, h, tripID)
	_, rec2 := newMember(t, h, tripID)

	h.Broadcast(tripID, "system-message", "hello", nil)

	assert.Equal(t, []string{"system-message"}, rec1.names())
	assert.Equal(t, []string{"system-message"}, rec2.names())
}

// TestHub_RoomIsolation verifies that a broadcast to one trip's room is
// never delivered to a session joined only to another trip.
func TestHub_RoomIsolation(t *testing.T) {
	h := collab.NewHub()
	trip1 := uuid.New()
	trip2 := uuid.New()

	_, rec1 := newMember(t, h, trip1)
	_, rec2 := newMember(t, h, trip2)

	h.Broadcast(trip1, "trip-updated", "x", nil)

	assert.Len(t, rec1.names(), 1)
	assert.Empty(t, rec2.names(), "session in another trip must not receive the event")
}

func TestHub_BroadcastExcludesSender(t *testing.T) {
	h := collab.NewHub()
	tripID := uuid.New()

	sender, senderRec := newMember(t, h, tripID)
	_, otherRec := newMember(t, h, tripID)

	h.Broadcast(tripID, "cursor-updated", "x", sender)

	assert.Empty(t, senderRec.names(), "sender must not receive its own event when excluded")
	assert.Len(t, otherRec.names(), 1)
}

// TestHub_JoinSwitchesRoom verifies that a session can be in only one room:
// joining a second trip implicitly removes it from the first.
func TestHub_JoinSwitchesRoom(t *testing.T) {
	h := collab.NewHub()
	trip1 := uuid.New()
	trip2 := uuid.New()

	s, _ := newMember(t, h, trip1)
	require.Equal(t, 1, h.RoomSize(trip1))

	h.Join(trip2, s)

	assert.Equal(t, 0, h.RoomSize(trip1))
	assert.Equal(t, 1, h.RoomSize(trip2))
}

func TestHub_Leave(t *testing.T) {
	h := collab.NewHub()
	tripID := uuid.New()

	s, _ := newMember(t, h, tripID)
	h.Leave(s)

	assert.Equal(t, 0, h.RoomSize(tripID))

	// Leaving again is a no-op.
	h.Leave(s)
	assert.Equal(t, 0, h.RoomSize(tripID))
}

func TestHub_Sessions(t *testing.T) {
	h := collab.NewHub()

	s1, _ := newMember(t, h, uuid.New())
	s2, _ := newMember(t, h, uuid.New())

	got := h.Sessions()
	assert.ElementsMatch(t, []*collab.Session{s1, s2}, got)
}
