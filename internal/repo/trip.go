// Package repo contains all database access logic for the collaboration
// service. The trip table is owned by the main Wayra API; this service
// reads it for authorization and merges collaboration updates into it.
// No business logic lives here — only SQL and type mapping.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/wayra/wayra-collab/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test, giving free
// per-test isolation without any manual cleanup.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TripRepo defines the trip operations the collaboration service needs.
type TripRepo interface {
	// Create inserts a trip and its collaborator rows and returns the
	// persisted record. Used by the main API and by integration tests.
	Create(ctx context.Context, trip domain.Trip) (domain.Trip, error)

	// GetByID retrieves a trip with its collaborator list.
	// Returns domain.ErrNotFound if no trip with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)

	// CanView loads the trip and checks view access for the user: the
	// owner, any collaborator, or anyone when the trip is public.
	// Returns domain.ErrUnauthorized when access is denied. The loaded
	// trip carries the collaborator list so the caller can derive the
	// user's role without another query.
	CanView(ctx context.Context, tripID, userID uuid.UUID) (domain.Trip, error)

	// ApplyUpdate merges an opaque collaboration update payload into the
	// trip's details document under the update category and bumps
	// updated_at. Returns domain.ErrNotFound if the trip does not exist.
	ApplyUpdate(ctx context.Context, tripID, userID uuid.UUID, updateType domain.UpdateCategory, data json.RawMessage) error
}

// pgTripRepo is the Postgres implementation of TripRepo.
type pgTripRepo struct {
	db db
}

// NewTripRepo constructs a TripRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewTripRepo(db db) TripRepo {
	return &pgTripRepo{db: db}
}

// Create inserts the trip row and one row per collaborator.
func (r *pgTripRepo) Create(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	const q = `
		INSERT INTO trips (owner_id, name, is_public, details)
		VALUES (@owner_id, @name, @is_public, @details)
		RETURNING id, owner_id, name, is_public, details, created_at, updated_at`

	details := trip.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{
		"owner_id":  trip.OwnerID,
		"name":      trip.Name,
		"is_public": trip.IsPublic,
		"details":   details,
	})
	created, err := scanTrip(row)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Create: %w", err)
	}

	const cq = `
		INSERT INTO trip_collaborators (trip_id, user_id, role)
		VALUES (@trip_id, @user_id, @role)`

	for _, c := range trip.Collaborators {
		_, err := r.db.Exec(ctx, cq, pgx.NamedArgs{
			"trip_id": created.ID,
			"user_id": c.UserID,
			"role":    string(c.Role),
		})
		if err != nil {
			return domain.Trip{}, fmt.Errorf("repo.TripRepo.Create: collaborator: %w", err)
		}
	}
	created.Collaborators = trip.Collaborators

	return created, nil
}

// GetByID retrieves a trip and its collaborators.
func (r *pgTripRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	const q = `
		SELECT id, owner_id, name, is_public, details, created_at, updated_at
		FROM trips
		WHERE id = @id`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id})
	trip, err := scanTrip(row)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", err)
	}

	trip.Collaborators, err = r.collaborators(ctx, id)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", err)
	}
	return trip, nil
}

// CanView loads the trip and applies the domain view rule.
func (r *pgTripRepo) CanView(ctx context.Context, tripID, userID uuid.UUID) (domain.Trip, error) {
	trip, err := r.GetByID(ctx, tripID)
	if err != nil {
		return domain.Trip{}, err
	}
	if !trip.ViewableBy(userID) {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.CanView: user %s on trip %s: %w", userID, tripID, domain.ErrUnauthorized)
	}
	return trip, nil
}

// ApplyUpdate merges the payload under details[updateType].
// The payload is opaque: it replaces whatever was stored under the
// category key wholesale — last writer wins, no merge.
func (r *pgTripRepo) ApplyUpdate(ctx context.Context, tripID, userID uuid.UUID, updateType domain.UpdateCategory, data json.RawMessage) error {
	const q = `
		UPDATE trips
		SET details    = jsonb_set(details, ARRAY[@category]::text[], @data::jsonb, true),
		    updated_at = now()
		WHERE id = @id`

	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{
		"id":       tripID,
		"category": string(updateType),
		"data":     data,
	})
	if err != nil {
		return fmt.Errorf("repo.TripRepo.ApplyUpdate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.TripRepo.ApplyUpdate: %w", domain.ErrNotFound)
	}
	return nil
}

// collaborators loads the collaborator rows for a trip.
func (r *pgTripRepo) collaborators(ctx context.Context, tripID uuid.UUID) ([]domain.Collaborator, error) {
	const q = `
		SELECT user_id, role
		FROM trip_collaborators
		WHERE trip_id = @trip_id
		ORDER BY added_at`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"trip_id": tripID})
	if err != nil {
		return nil, fmt.Errorf("collaborators: %w", err)
	}
	defer rows.Close()

	var out []domain.Collaborator
	for rows.Next() {
		var (
			id   pgtype.UUID
			role string
		)
		if err := rows.Scan(&id, &role); err != nil {
			return nil, fmt.Errorf("collaborators: scan: %w", err)
		}
		out = append(out, domain.Collaborator{
			UserID: uuid.UUID(id.Bytes),
			Role:   domain.CollaboratorRole(role),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("collaborators: rows: %w", err)
	}
	return out, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing scanTrip to be
// reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// scanTrip maps a single database row into a domain.Trip (without collaborators).
func scanTrip(s scanner) (domain.Trip, error) {
	var (
		t       domain.Trip
		id      pgtype.UUID
		ownerID pgtype.UUID
		details []byte
	)

	err := s.Scan(&id, &ownerID, &t.Name, &t.IsPublic, &details, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trip{}, domain.ErrNotFound
		}
		return domain.Trip{}, err
	}

	t.ID = uuid.UUID(id.Bytes)
	t.OwnerID = uuid.UUID(ownerID.Bytes)
	t.Details = details
	return t, nil
}
