package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wayra/wayra-collab/internal/domain"
)

// TripAuthorizer answers "may this user view this trip" and supplies the
// loaded trip so the caller can derive the user's role without a second
// query. Returns domain.ErrUnauthorized when access is denied and
// domain.ErrNotFound when the trip does not exist.
type TripAuthorizer interface {
	CanView(ctx context.Context, tripID, userID uuid.UUID) (domain.Trip, error)
}

// TripPersister writes a collaboration update through to the trip document.
// Only trip-update uses it; itinerary edits are relayed without persistence.
type TripPersister interface {
	ApplyUpdate(ctx context.Context, tripID, userID uuid.UUID, updateType domain.UpdateCategory, data json.RawMessage) error
}

// CacheInvalidator drops read-cache entries for a trip after a persisted update.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, tripID uuid.UUID) error
}

// PresenceStore is the shared "who is viewing which trip" map.
type PresenceStore interface {
	Set(ctx context.Context, tripID uuid.UUID, entry domain.PresenceEntry) error
	All(ctx context.Context, tripID uuid.UUID) ([]domain.PresenceEntry, error)
	Remove(ctx context.Context, tripID, userID uuid.UUID) error
}

// ActivityLog is the bounded per-trip recent-activity feed.
type ActivityLog interface {
	Append(ctx context.Context, tripID uuid.UUID, entry domain.ActivityEntry) error
	Recent(ctx context.Context, tripID uuid.UUID, limit int) ([]domain.ActivityEntry, error)
}

// Publisher fans a room broadcast out to other server instances.
type Publisher interface {
	Publish(ctx context.Context, tripID uuid.UUID, event string, payload any) error
}

// defaultCallTimeout bounds external calls (authorization, persistence,
// stores) so a hung collaborator cannot leave a handler pending forever.
const defaultCallTimeout = 5 * time.Second

// Deps are the collaborators a Service needs. All stores are injected
// interfaces, never package-level singletons, so tests can substitute
// doubles and multiple independent services can coexist in one process.
type Deps struct {
	Auth      TripAuthorizer
	Persister TripPersister
	Cache     CacheInvalidator
	Presence  PresenceStore
	Activity  ActivityLog

	// Publisher is optional: nil disables cross-instance fanout
	// (single-instance deployments and most tests).
	Publisher Publisher

	Hub *Hub
	Log *slog.Logger

	// CallTimeout bounds each external call; zero means the default 5s.
	CallTimeout time.Duration
}

// Service mediates every collaboration action for every session.
// Each operation is a sequential pipeline — authorize, mutate, invalidate,
// log, broadcast — with early return on failure, so a failed precondition
// never leaves a partial broadcast behind.
//
// Failure policy (mirrors what the user should see):
//   - authorization and persistence failures go back to the caller as an
//     "error" event and abort the pipeline;
//   - presence/activity/bridge failures are logged and suppressed so the
//     user-facing operation still succeeds.
type Service struct {
	auth      TripAuthorizer
	persister TripPersister
	cache     CacheInvalidator
	presence  PresenceStore
	activity  ActivityLog
	publisher Publisher
	hub       *Hub
	log       *slog.Logger
	timeout   time.Duration
}

// NewService constructs a Service from its dependencies.
func NewService(d Deps) *Service {
	timeout := d.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		auth:      d.Auth,
		persister: d.Persister,
		cache:     d.Cache,
		presence:  d.Presence,
		activity:  d.Activity,
		publisher: d.Publisher,
		hub:       d.Hub,
		log:       log,
		timeout:   timeout,
	}
}

// opCtx bounds one operation's external calls.
func (svc *Service) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, svc.timeout)
}

// Join puts the session into the trip's room after an authorization check.
//
// On success the session's presence entry is written (overwriting any entry
// from an earlier connection of the same user — last join wins), an activity
// line is appended, existing members are told about the new viewer, and the
// joining session receives the full presence snapshot.
//
// If the session was already in a different trip's room, that room is left
// first, exactly as if Leave had been called.
func (svc *Service) Join(ctx context.Context, s *Session, tripID, userID uuid.UUID, info domain.UserInfo) error {
	ctx, cancel := svc.opCtx(ctx)
	defer cancel()

	if _, err := svc.auth.CanView(ctx, tripID, userID); err != nil {
		s.Emit(EventError, ErrorPayload{Message: accessDeniedMessage(err)})
		return fmt.Errorf("collab.Join: %w", err)
	}

	if s.tripID != uuid.Nil && s.tripID != tripID {
		svc.leaveRoom(ctx, s)
	}

	s.UserID = userID
	s.Info = info
	s.tripID = tripID
	svc.hub.Join(tripID, s)

	entry := domain.PresenceEntry{
		ConnectionID: s.ID,
		UserID:       userID,
		Name:         info.Name,
		AvatarURL:    info.AvatarURL,
		LastAction:   "joined trip",
		UpdatedAt:    time.Now().UTC(),
	}
	if err := svc.presence.Set(ctx, tripID, entry); err != nil {
		// Presence is non-critical: the join still succeeds.
		svc.log.Warn("presence write failed on join", "trip_id", tripID, "user_id", userID, "error", err)
	}

	svc.logActivity(ctx, tripID, userID, "joined trip collaboration")

	snapshot := svc.snapshot(ctx, tripID)
	svc.broadcast(ctx, tripID, EventUserJoined, UserJoinedPayload{
		UserID:   userID,
		UserInfo: info,
		Presence: snapshot,
	}, s)
	s.Emit(EventPresenceUpdate, PresencePayload{Presence: snapshot})
	return nil
}

// Leave takes the session out of its current room, clears its presence
// entry, and tells the remaining members. Leaving when not in a room is a
// no-op, never an error.
func (svc *Service) Leave(ctx context.Context, s *Session) error {
	if s.tripID == uuid.Nil {
		return nil
	}

	ctx, cancel := svc.opCtx(ctx)
	defer cancel()

	svc.leaveRoom(ctx, s)
	return nil
}

// leaveRoom runs the shared leave pipeline: room removal, presence delete,
// activity line, user-left broadcast to whoever remains.
func (svc *Service) leaveRoom(ctx context.Context, s *Session) {
	tripID := s.tripID
	userID := s.UserID

	svc.hub.Leave(s)
	s.tripID = uuid.Nil

	if err := svc.presence.Remove(ctx, tripID, userID); err != nil {
		svc.log.Warn("presence remove failed on leave", "trip_id", tripID, "user_id", userID, "error", err)
	}

	svc.logActivity(ctx, tripID, userID, "left trip collaboration")

	svc.broadcast(ctx, tripID, EventUserLeft, UserLeftPayload{
		UserID:   userID,
		Presence: svc.snapshot(ctx, tripID),
	}, nil)
}

// UpdateTrip is the only operation that writes through to the trip
// document. Pipeline: authorize (owner or editor) → persist → invalidate
// read cache → log activity → broadcast to the whole room, sender included.
// A persistence failure aborts before any broadcast.
func (svc *Service) UpdateTrip(ctx context.Context, s *Session, tripID, userID uuid.UUID, updateType domain.UpdateCategory, data json.RawMessage) error {
	ctx, cancel := svc.opCtx(ctx)
	defer cancel()

	if err := svc.requireEditor(ctx, s, tripID, userID); err != nil {
		return fmt.Errorf("collab.UpdateTrip: %w", err)
	}

	if err := svc.persister.ApplyUpdate(ctx, tripID, userID, updateType, data); err != nil {
		s.Emit(EventError, ErrorPayload{Message: "Failed to update trip"})
		return fmt.Errorf("collab.UpdateTrip: persist: %w", err)
	}

	if err := svc.cache.Invalidate(ctx, tripID); err != nil {
		// The write already succeeded; a stale cache is not worth failing over.
		svc.log.Warn("trip cache invalidation failed", "trip_id", tripID, "error", err)
	}

	svc.logActivity(ctx, tripID, userID, fmt.Sprintf("updated trip %s", updateType))

	svc.broadcast(ctx, tripID, EventTripUpdated, TripUpdatedPayload{
		TripID:     tripID,
		UserID:     userID,
		UpdateType: updateType,
		UpdateData: data,
		UserInfo:   s.Info,
		Timestamp:  time.Now().UTC(),
	}, nil)
	return nil
}

// UpdateItinerary relays an itinerary edit to the room. It requires the
// same owner/editor role as UpdateTrip but performs no persistence —
// itinerary writes belong to the REST API, not this subsystem.
func (svc *Service) UpdateItinerary(ctx context.Context, s *Session, tripID, userID uuid.UUID, day, activityIndex int, activityData json.RawMessage, action string) error {
	ctx, cancel := svc.opCtx(ctx)
	defer cancel()

	if err := svc.requireEditor(ctx, s, tripID, userID); err != nil {
		return fmt.Errorf("collab.UpdateItinerary: %w", err)
	}

	svc.logActivity(ctx, tripID, userID, fmt.Sprintf("%s itinerary item on day %d", action, day))

	svc.broadcast(ctx, tripID, EventItineraryUpdated, ItineraryUpdatedPayload{
		TripID:        tripID,
		UserID:        userID,
		Day:           day,
		ActivityIndex: activityIndex,
		ActivityData:  activityData,
		Action:        action,
		UserInfo:      s.Info,
		Timestamp:     time.Now().UTC(),
	}, nil)
	return nil
}

// UpdateCursor refreshes the sender's presence entry with the new cursor
// position and relays it to everyone else in the room. No authorization
// check: cursors are ephemeral signaling, and the sender never receives
// its own echo.
func (svc *Service) UpdateCursor(ctx context.Context, s *Session, tripID, userID uuid.UUID, cursor json.RawMessage) error {
	ctx, cancel := svc.opCtx(ctx)
	defer cancel()

	entry := domain.PresenceEntry{
		ConnectionID: s.ID,
		UserID:       userID,
		Name:         s.Info.Name,
		AvatarURL:    s.Info.AvatarURL,
		LastAction:   "editing",
		Cursor:       cursor,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := svc.presence.Set(ctx, tripID, entry); err != nil {
		svc.log.Warn("presence write failed on cursor update", "trip_id", tripID, "user_id", userID, "error", err)
	}

	svc.broadcast(ctx, tripID, EventCursorUpdated, CursorPayload{
		UserID: userID,
		Cursor: cursor,
	}, s)
	return nil
}

// Typing relays a typing start/stop signal to everyone else in the room.
// No authorization check and no presence write.
func (svc *Service) Typing(ctx context.Context, s *Session, tripID, userID uuid.UUID, field string, typing bool) {
	ctx, cancel := svc.opCtx(ctx)
	defer cancel()

	svc.broadcast(ctx, tripID, EventUserTyping, TypingPayload{
		UserID: userID,
		Field:  field,
		Typing: typing,
	}, s)
}

// AddComment appends an activity line and broadcasts the comment to the
// whole room, sender included. Any room member may comment — no
// authorization check.
func (svc *Service) AddComment(ctx context.Context, s *Session, tripID, userID uuid.UUID, comment, targetType, targetID string) error {
	ctx, cancel := svc.opCtx(ctx)
	defer cancel()

	svc.logActivity(ctx, tripID, userID, "added a comment")

	svc.broadcast(ctx, tripID, EventCommentAdded, CommentAddedPayload{
		TripID:     tripID,
		UserID:     userID,
		Comment:    comment,
		TargetType: targetType,
		TargetID:   targetID,
		UserInfo:   s.Info,
		Timestamp:  time.Now().UTC(),
	}, nil)
	return nil
}

// UpdateBudget broadcasts a budget change to the whole room, sender
// included. It is intentionally gated on view access only, weaker than
// UpdateTrip's owner/editor requirement.
func (svc *Service) UpdateBudget(ctx context.Context, s *Session, tripID, userID uuid.UUID, budgetData json.RawMessage, category string) error {
	ctx, cancel := svc.opCtx(ctx)
	defer cancel()

	if _, err := svc.auth.CanView(ctx, tripID, userID); err != nil {
		s.Emit(EventError, ErrorPayload{Message: accessDeniedMessage(err)})
		return fmt.Errorf("collab.UpdateBudget: %w", err)
	}

	action := "updated budget"
	if category != "" {
		action = fmt.Sprintf("updated budget %s", category)
	}
	svc.logActivity(ctx, tripID, userID, action)

	svc.broadcast(ctx, tripID, EventBudgetUpdated, BudgetUpdatedPayload{
		TripID:     tripID,
		UserID:     userID,
		BudgetData: budgetData,
		Category:   category,
		UserInfo:   s.Info,
		Timestamp:  time.Now().UTC(),
	}, nil)
	return nil
}

// Disconnect runs the implicit-leave path for a closed connection, using
// the session's own stored trip and user — the client cannot send anything
// after the transport is gone, so nothing is emitted to it.
func (svc *Service) Disconnect(ctx context.Context, s *Session) {
	if s.tripID == uuid.Nil {
		return
	}

	ctx, cancel := svc.opCtx(ctx)
	defer cancel()

	svc.leaveRoom(ctx, s)
}

// Ping answers with a pong. No state change.
func (svc *Service) Ping(s *Session) {
	s.Emit(EventPong, PongPayload{Timestamp: time.Now().UTC()})
}

// TripActivity returns up to limit recent activity entries, newest first.
func (svc *Service) TripActivity(ctx context.Context, tripID uuid.UUID, limit int) ([]domain.ActivityEntry, error) {
	ctx, cancel := svc.opCtx(ctx)
	defer cancel()
	return svc.activity.Recent(ctx, tripID, limit)
}

// TripPresence returns every current presence entry for the trip.
func (svc *Service) TripPresence(ctx context.Context, tripID uuid.UUID) ([]domain.PresenceEntry, error) {
	ctx, cancel := svc.opCtx(ctx)
	defer cancel()
	return svc.presence.All(ctx, tripID)
}

// BroadcastSystemMessage injects a synthetic event with no originating
// user into the trip's room, timestamped at call time.
func (svc *Service) BroadcastSystemMessage(ctx context.Context, tripID uuid.UUID, message string) {
	ctx, cancel := svc.opCtx(ctx)
	defer cancel()

	svc.broadcast(ctx, tripID, EventSystemMessage, SystemMessagePayload{
		Message:   message,
		Timestamp: time.Now().UTC(),
	}, nil)
}

// requireEditor authorizes an edit: view access plus owner or editor role.
// On failure it emits the error event to the caller and returns the cause.
func (svc *Service) requireEditor(ctx context.Context, s *Session, tripID, userID uuid.UUID) error {
	trip, err := svc.auth.CanView(ctx, tripID, userID)
	if err != nil {
		s.Emit(EventError, ErrorPayload{Message: accessDeniedMessage(err)})
		return err
	}

	role := trip.RoleOf(userID)
	if !role.IsOwner && !role.IsEditor {
		s.Emit(EventError, ErrorPayload{Message: "You do not have permission to edit this trip"})
		return domain.ErrForbidden
	}
	return nil
}

// logActivity appends an activity entry, suppressing failures: a broken
// feed must not block the operation that produced it.
func (svc *Service) logActivity(ctx context.Context, tripID, userID uuid.UUID, action string) {
	entry := domain.ActivityEntry{
		TripID:    tripID,
		UserID:    userID,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
	if err := svc.activity.Append(ctx, tripID, entry); err != nil {
		svc.log.Warn("activity append failed", "trip_id", tripID, "action", action, "error", err)
	}
}

// snapshot fetches the trip's presence, logging and degrading to empty on
// failure so broadcasts still go out.
func (svc *Service) snapshot(ctx context.Context, tripID uuid.UUID) []domain.PresenceEntry {
	entries, err := svc.presence.All(ctx, tripID)
	if err != nil {
		svc.log.Warn("presence snapshot failed", "trip_id", tripID, "error", err)
		return nil
	}
	return entries
}

// broadcast delivers to the local room and, when a publisher is wired,
// to every other instance's rooms. Bridge failures are logged, never
// surfaced: cross-instance fanout is fire-and-forget.
func (svc *Service) broadcast(ctx context.Context, tripID uuid.UUID, event string, payload any, exclude *Session) {
	svc.hub.Broadcast(tripID, event, payload, exclude)

	if svc.publisher == nil {
		return
	}
	if err := svc.publisher.Publish(ctx, tripID, event, payload); err != nil {
		svc.log.Warn("bridge publish failed", "trip_id", tripID, "event", event, "error", err)
	}
}

// accessDeniedMessage maps an authorization failure to the message the
// caller sees. Unknown errors deliberately read as access problems rather
// than leaking internals.
func accessDeniedMessage(err error) string {
	if errors.Is(err, domain.ErrNotFound) {
		return "Trip not found"
	}
	return "Access denied"
}
