package domain

// UpdateCategory labels what part of a trip a collaboration update touches.
// The payload itself is opaque to this service.
type UpdateCategory string

const (
	UpdateTripDetails  UpdateCategory = "trip-details"
	UpdateItinerary    UpdateCategory = "itinerary"
	UpdateBudget       UpdateCategory = "budget"
	UpdateCollaborator UpdateCategory = "collaborator"
	UpdateComment      UpdateCategory = "comment"
)
