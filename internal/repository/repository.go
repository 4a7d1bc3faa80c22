package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/UnknownOlympus/waypoint/internal/models"
)

// ErrTripNotFound is returned when no saved trip has the requested id.
var ErrTripNotFound = errors.New("saved trip not found")

type Repository struct {
	db  Database
	log *slog.Logger
}

type Interface interface {
	FetchItinerary(ctx context.Context, tripID int64) ([]byte, error)
	ListTrips(ctx context.Context, userID string) ([]models.SavedTrip, error)
}

// NewRepository creates a new instance of Repository with the provided Database.
// It returns a pointer to the newly created Repository.
func NewRepository(db Database, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log}
}
