package models

import "time"

// SavedTrip is an itinerary a user stored for later.
// Itinerary holds the raw JSON document as it was saved.
type SavedTrip struct {
	ID        int64
	UserID    string
	CreatedAt time.Time
	Itinerary []byte
}
