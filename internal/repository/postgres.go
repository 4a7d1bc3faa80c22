package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/jackc/pgx/v5"
)

// FetchItinerary returns the stored itinerary document of a saved trip.
// It returns ErrTripNotFound when the trip does not exist.
func (r *Repository) FetchItinerary(ctx context.Context, tripID int64) ([]byte, error) {
	query := `
		SELECT itinerary_json
		FROM saved_trips
		WHERE id = $1;
	`

	var doc string
	if err := r.db.QueryRow(ctx, query, tripID).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrTripNotFound, tripID)
		}
		return nil, fmt.Errorf("failed to query saved trip: %w", err)
	}

	r.log.DebugContext(ctx, "Saved trip itinerary fetched", "trip", tripID, "bytes", len(doc))

	return []byte(doc), nil
}

// ListTrips retrieves every trip saved by a user, newest first.
//
// Parameters:
// - ctx: The context for the operation, allowing for cancellation and timeout.
// - userID: The identity subject of the owner.
//
// Returns:
// - A slice of models.SavedTrip with the itinerary documents.
// - An error if the query fails or if there is an issue scanning the results.
func (r *Repository) ListTrips(ctx context.Context, userID string) ([]models.SavedTrip, error) {
	var trips []models.SavedTrip
	query := `
		SELECT id, user_id, created_at, itinerary_json
		FROM saved_trips
		WHERE user_id = $1
		ORDER BY created_at DESC;
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query saved trips: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			trip models.SavedTrip
			doc  string
		)
		if errScan := rows.Scan(&trip.ID, &trip.UserID, &trip.CreatedAt, &doc); errScan != nil {
			return nil, fmt.Errorf("failed to scan saved trip: %w", errScan)
		}
		trip.Itinerary = []byte(doc)
		trips = append(trips, trip)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read row: %w", err)
	}

	r.log.DebugContext(ctx, "Saved trips listed", "user", userID, "count", len(trips))

	return trips, nil
}
