// Package handler implements the HTTP surface of the collaboration service:
// the WebSocket endpoint clients hold open while viewing a trip, and the
// small REST query surface (activity feed, presence snapshot, system
// messages). Handlers are split into files by concern but share the same
// Server struct so they can access its dependencies.
package handler

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wayra/wayra-collab/internal/domain"
)

// CollabService defines the collaboration operations the REST query handlers
// depend on. Defining the interface here (in the consumer package) follows
// the Go convention: "accept interfaces, return concrete types". It lets
// handler tests inject a mock without a Redis or database connection.
type CollabService interface {
	TripActivity(ctx context.Context, tripID uuid.UUID, limit int) ([]domain.ActivityEntry, error)
	TripPresence(ctx context.Context, tripID uuid.UUID) ([]domain.PresenceEntry, error)
	BroadcastSystemMessage(ctx context.Context, tripID uuid.UUID, message string)
}

// Server holds the dependencies shared by all REST query handlers.
// The WebSocket endpoint has its own type (WSHandler) because it depends on
// the concrete session machinery, not this narrow query interface.
type Server struct {
	collab CollabService
	log    *slog.Logger
}

// NewServer constructs the Server with all its dependencies.
func NewServer(collab CollabService, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{collab: collab, log: log}
}
