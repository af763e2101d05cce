package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wayra/wayra-collab/internal/domain"
)

// maxActivityLimit caps the ?limit= query parameter so a client cannot ask
// for more entries than the store retains.
const maxActivityLimit = 100

// GetTripActivity handles GET /api/trips/{id}/activity.
// Returns the trip's recent activity entries, newest first. Supports
// ?limit= (default 20, max 100).
func (s *Server) GetTripActivity(w http.ResponseWriter, r *http.Request) {
	tripID, ok := tripIDParam(w, r)
	if !ok {
		return
	}

	limit := domain.DefaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusUnprocessableEntity, "validation_error", "limit must be a positive integer")
			return
		}
		limit = min(n, maxActivityLimit)
	}

	entries, err := s.collab.TripActivity(r.Context(), tripID, limit)
	if err != nil {
		s.log.Error("activity query failed", "trip_id", tripID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load activity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}

// GetTripPresence handles GET /api/trips/{id}/presence.
// Returns every user currently viewing the trip.
func (s *Server) GetTripPresence(w http.ResponseWriter, r *http.Request) {
	tripID, ok := tripIDParam(w, r)
	if !ok {
		return
	}

	entries, err := s.collab.TripPresence(r.Context(), tripID)
	if err != nil {
		s.log.Error("presence query failed", "trip_id", tripID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load presence")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}

// systemMessageRequest is the body for POST /api/trips/{id}/system-message.
type systemMessageRequest struct {
	Message string `json:"message"`
}

// PostSystemMessage handles POST /api/trips/{id}/system-message.
// It injects a server-originated message into the trip's room and returns
// 202: delivery is fire-and-forget, there is no per-recipient confirmation.
func (s *Server) PostSystemMessage(w http.ResponseWriter, r *http.Request) {
	tripID, ok := tripIDParam(w, r)
	if !ok {
		return
	}

	var body systemMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "request body must be valid JSON")
		return
	}
	if body.Message == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "message is required")
		return
	}

	s.collab.BroadcastSystemMessage(r.Context(), tripID, body.Message)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// tripIDParam extracts and validates the {id} path parameter. On failure it
// writes the error response and returns ok=false.
func tripIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "trip id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
