// Package domain contains the core data types for the Wayra collaboration
// service. This package has zero external dependencies beyond uuid and is
// imported by every other internal package (repo, store, collab, handler).
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CollaboratorRole is the access level granted to a trip collaborator.
type CollaboratorRole string

const (
	RoleEditor CollaboratorRole = "editor"
	RoleViewer CollaboratorRole = "viewer"
)

// Collaborator is one user granted access to a trip by its owner.
type Collaborator struct {
	UserID uuid.UUID        `json:"user_id"`
	Role   CollaboratorRole `json:"role"`
}

// Trip is the authorization and persistence view of a trip as the
// collaboration service sees it. Details holds the opaque planning payload
// (itinerary, budget, ...) that collaboration updates are merged into;
// this service never interprets it.
type Trip struct {
	ID            uuid.UUID       `json:"id"`
	OwnerID       uuid.UUID       `json:"owner_id"`
	Name          string          `json:"name"`
	IsPublic      bool            `json:"is_public"`
	Details       json.RawMessage `json:"details,omitempty"`
	Collaborators []Collaborator  `json:"collaborators,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MemberRole is the derived role of a user on a trip.
type MemberRole struct {
	IsOwner  bool
	IsEditor bool
}

// RoleOf derives a user's role from the loaded trip document.
// It is a pure function: the collaborator list travels with the trip,
// so no extra query is needed after CanView.
func (t Trip) RoleOf(userID uuid.UUID) MemberRole {
	if t.OwnerID == userID {
		return MemberRole{IsOwner: true, IsEditor: true}
	}
	for _, c := range t.Collaborators {
		if c.UserID == userID {
			return MemberRole{IsEditor: c.Role == RoleEditor}
		}
	}
	return MemberRole{}
}

// ViewableBy reports whether a user may view the trip: the owner, any
// collaborator, or anyone when the trip is public.
func (t Trip) ViewableBy(userID uuid.UUID) bool {
	if t.IsPublic || t.OwnerID == userID {
		return true
	}
	for _, c := range t.Collaborators {
		if c.UserID == userID {
			return true
		}
	}
	return false
}
