package geocoding

import (
	"context"
	"errors"

	"github.com/UnknownOlympus/waypoint/internal/models"
)

// Provider is an interface that defines a method for geocoding an address.
// The Geocode method takes a context and an address string as input,
// and returns the coordinates of the first candidate or a classified error.
//
// Implementations wrap ErrNoMatch when the provider found nothing and
// ErrRateLimited when the provider refused the request because of quota.
type Provider interface {
	Geocode(ctx context.Context, address string) (*models.Coordinates, error)
}

// Classification errors shared by every provider.
var (
	ErrNoMatch     = errors.New("geocoding provider found no match")
	ErrRateLimited = errors.New("geocoding provider rate limit reached")
)

// Classify maps a Geocode result error onto an outcome kind.
func Classify(err error) models.OutcomeKind {
	switch {
	case err == nil:
		return models.OutcomeResolved
	case errors.Is(err, ErrNoMatch):
		return models.OutcomeNoMatch
	case errors.Is(err, ErrRateLimited):
		return models.OutcomeRateLimited
	default:
		return models.OutcomeFailed
	}
}
