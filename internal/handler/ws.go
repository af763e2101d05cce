package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wayra/wayra-collab/internal/collab"
	"github.com/wayra/wayra-collab/internal/domain"
)

const (
	// writeWait is the deadline for a single outbound frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before the read
	// loop gives up on it. Protocol-level pings keep healthy connections
	// under this bound; the application-level ping event is separate and
	// exists for client-side latency measurement.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds a single inbound frame. Collaboration payloads
	// are small; anything bigger is a misbehaving client.
	maxMessageSize = 64 * 1024

	// sendBufferSize is the per-connection outbound queue. When it fills,
	// events for that client are dropped rather than blocking the room.
	sendBufferSize = 256
)

// frame is the wire format for both directions: an event name plus an
// event-specific JSON payload.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WSHandler upgrades HTTP requests to WebSocket connections and pumps
// frames between each connection and the collaboration service.
// It tracks every live connection so Shutdown can close them; each
// session's state stays owned by its own connection goroutine throughout.
type WSHandler struct {
	svc      *collab.Service
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewWSHandler constructs the WebSocket endpoint. Browser connections are
// accepted only from allowedOrigins; requests without an Origin header
// (server-to-server clients, test dialers) are always accepted.
func NewWSHandler(svc *collab.Service, allowedOrigins []string, log *slog.Logger) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	h := &WSHandler{
		svc:     svc,
		log:     log,
		clients: make(map[*wsClient]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeHTTP handles GET /ws. It upgrades the connection, runs the write
// pump in a goroutine, and consumes inbound frames on the request
// goroutine until the client disconnects.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan frame, sendBufferSize),
		log:  h.log,
	}
	if !h.register(client) {
		// Shutdown already started; refuse the connection.
		_ = conn.Close()
		return
	}
	sess := collab.NewSession(client)

	h.log.Info("websocket connected", "connection_id", sess.ID, "remote", r.RemoteAddr)

	go client.writePump()
	h.readPump(client, sess)

	// The transport is gone: run the implicit-leave path with a fresh
	// context, not the request's (which is already cancelled). This is the
	// only goroutine that touches the session, including during Shutdown,
	// which closes the connection and lets this path do the cleanup.
	h.svc.Disconnect(context.Background(), sess)
	client.close()
	h.unregister(client)

	h.log.Info("websocket disconnected", "connection_id", sess.ID)
}

// register adds a live connection, reporting false once Shutdown has begun.
func (h *WSHandler) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *WSHandler) unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.wg.Done()
}

// Shutdown closes every live connection and waits until each one's handler
// goroutine has finished its disconnect cleanup (presence removal,
// user-left broadcast), or until ctx expires. New connections are refused
// once Shutdown has been called.
func (h *WSHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	// Closing the transport makes each read loop return, after which its
	// own goroutine runs Disconnect — the same path as a client dropping.
	for _, c := range clients {
		_ = c.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readPump consumes frames until the connection errors or closes.
func (h *WSHandler) readPump(client *wsClient, sess *collab.Session) {
	conn := client.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("websocket read failed", "connection_id", sess.ID, "error", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
			sess.Emit(collab.EventError, collab.ErrorPayload{Message: "Invalid message format"})
			continue
		}

		h.dispatch(sess, f)
	}
}

// dispatch routes one inbound frame to the matching service operation.
// Service-level failures already reach the client as error events, so they
// are only logged here. Unknown events are dropped.
func (h *WSHandler) dispatch(sess *collab.Session, f frame) {
	ctx := context.Background()

	switch f.Event {
	case collab.EventJoinTrip:
		var p struct {
			TripID   uuid.UUID       `json:"trip_id"`
			UserID   uuid.UUID       `json:"user_id"`
			UserInfo domain.UserInfo `json:"user_info"`
		}
		if !h.decode(sess, f, &p) {
			return
		}
		if err := h.svc.Join(ctx, sess, p.TripID, p.UserID, p.UserInfo); err != nil {
			h.log.Info("join rejected", "connection_id", sess.ID, "trip_id", p.TripID, "error", err)
		}

	case collab.EventLeaveTrip:
		_ = h.svc.Leave(ctx, sess)

	case collab.EventTripUpdate:
		var p struct {
			TripID     uuid.UUID             `json:"trip_id"`
			UserID     uuid.UUID             `json:"user_id"`
			UpdateType domain.UpdateCategory `json:"update_type"`
			Data       json.RawMessage       `json:"data"`
		}
		if !h.decode(sess, f, &p) {
			return
		}
		if err := h.svc.UpdateTrip(ctx, sess, p.TripID, p.UserID, p.UpdateType, p.Data); err != nil {
			h.log.Info("trip update rejected", "connection_id", sess.ID, "trip_id", p.TripID, "error", err)
		}

	case collab.EventItineraryUpdate:
		var p struct {
			TripID        uuid.UUID       `json:"trip_id"`
			UserID        uuid.UUID       `json:"user_id"`
			Day           int             `json:"day"`
			ActivityIndex int             `json:"activity_index"`
			ActivityData  json.RawMessage `json:"activity_data"`
			Action        string          `json:"action"`
		}
		if !h.decode(sess, f, &p) {
			return
		}
		if err := h.svc.UpdateItinerary(ctx, sess, p.TripID, p.UserID, p.Day, p.ActivityIndex, p.ActivityData, p.Action); err != nil {
			h.log.Info("itinerary update rejected", "connection_id", sess.ID, "trip_id", p.TripID, "error", err)
		}

	case collab.EventCursorUpdate:
		var p struct {
			TripID uuid.UUID       `json:"trip_id"`
			UserID uuid.UUID       `json:"user_id"`
			Cursor json.RawMessage `json:"cursor"`
		}
		if !h.decode(sess, f, &p) {
			return
		}
		_ = h.svc.UpdateCursor(ctx, sess, p.TripID, p.UserID, p.Cursor)

	case collab.EventTypingStart, collab.EventTypingStop:
		var p struct {
			TripID uuid.UUID `json:"trip_id"`
			UserID uuid.UUID `json:"user_id"`
			Field  string    `json:"field"`
		}
		if !h.decode(sess, f, &p) {
			return
		}
		h.svc.Typing(ctx, sess, p.TripID, p.UserID, p.Field, f.Event == collab.EventTypingStart)

	case collab.EventCommentAdd:
		var p struct {
			TripID     uuid.UUID `json:"trip_id"`
			UserID     uuid.UUID `json:"user_id"`
			Comment    string    `json:"comment"`
			TargetType string    `json:"target_type"`
			TargetID   string    `json:"target_id"`
		}
		if !h.decode(sess, f, &p) {
			return
		}
		_ = h.svc.AddComment(ctx, sess, p.TripID, p.UserID, p.Comment, p.TargetType, p.TargetID)

	case collab.EventBudgetUpdate:
		var p struct {
			TripID     uuid.UUID       `json:"trip_id"`
			UserID     uuid.UUID       `json:"user_id"`
			BudgetData json.RawMessage `json:"budget_data"`
			Category   string          `json:"category"`
		}
		if !h.decode(sess, f, &p) {
			return
		}
		if err := h.svc.UpdateBudget(ctx, sess, p.TripID, p.UserID, p.BudgetData, p.Category); err != nil {
			h.log.Info("budget update rejected", "connection_id", sess.ID, "trip_id", p.TripID, "error", err)
		}

	case collab.EventPing:
		h.svc.Ping(sess)

	default:
		h.log.Debug("unknown event dropped", "connection_id", sess.ID, "event", f.Event)
	}
}

// decode unmarshals the frame payload, reporting malformed data to the
// client as an error event.
func (h *WSHandler) decode(sess *collab.Session, f frame, v any) bool {
	if len(f.Data) == 0 {
		sess.Emit(collab.EventError, collab.ErrorPayload{Message: "Invalid payload for " + f.Event})
		return false
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		sess.Emit(collab.EventError, collab.ErrorPayload{Message: "Invalid payload for " + f.Event})
		return false
	}
	return true
}

// wsClient adapts one websocket connection to the collab.Emitter interface.
// All writes go through the send channel so only writePump touches the
// connection's write side.
type wsClient struct {
	conn *websocket.Conn
	send chan frame
	log  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Emit queues an event for delivery. When the client's queue is full the
// event is dropped: a slow consumer must not stall the whole room. Emits
// after close are dropped too.
func (c *wsClient) Emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Error("event payload marshal failed", "event", event, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.send <- frame{Event: event, Data: data}:
	default:
		c.log.Warn("send queue full, dropping event", "event", event)
	}
}

// close shuts the send channel, which in turn terminates writePump.
func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump serializes all writes to the connection: queued event frames
// plus periodic protocol pings. It exits when the send channel closes or a
// write fails.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
