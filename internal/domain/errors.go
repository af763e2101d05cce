package domain

import "errors"

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist in the database.
// HTTP handlers should map this to 404; the websocket layer emits an
// "error" event to the caller.
var ErrNotFound = errors.New("not found")

// ErrUnauthorized is returned when a user has no view access to a trip.
// The caller receives an "error" event and no state is mutated.
var ErrUnauthorized = errors.New("access denied")

// ErrForbidden is returned when a user can view a trip but lacks the
// owner/editor role an operation requires (e.g. trip-update).
var ErrForbidden = errors.New("insufficient role")
