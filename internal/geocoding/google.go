package geocoding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/UnknownOlympus/waypoint/internal/models"
	"googlemaps.github.io/maps"
)

// GoogleProvider is a struct that holds the client for Google Maps API
// and a logger for logging purposes. It is used to interact with the
// Google Maps geocoding services.
type GoogleProvider struct {
	client GoogleAPIClient // client is the Google Maps API client
	log    *slog.Logger    // log is the logger for logging operations
}

type GoogleAPIClient interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// Google status codes that are not plain failures.
const (
	googleStatusZeroResults    = "ZERO_RESULTS"
	googleStatusOverQueryLimit = "OVER_QUERY_LIMIT"
	googleStatusOverDailyLimit = "OVER_DAILY_LIMIT"
)

// ErrEmptyResponse is returned when the Google Maps API responds with an empty result.
var ErrEmptyResponse = fmt.Errorf("get empty response from Google Maps API: %w", ErrNoMatch)

// NewGoogleProvider wraps an already configured Google Maps client.
func NewGoogleProvider(client GoogleAPIClient, log *slog.Logger) *GoogleProvider {
	return &GoogleProvider{client: client, log: log}
}

// Geocode takes a context and an address string as input, and returns the geographical coordinates
// of the first candidate returned by the Google Maps Geocoding API. Remaining candidates are dropped.
// ZERO_RESULTS and quota statuses are translated into ErrNoMatch and ErrRateLimited.
func (gp *GoogleProvider) Geocode(ctx context.Context, address string) (*models.Coordinates, error) {
	gp.log.DebugContext(ctx, "Geocoding using Google Maps", "address", address)

	req := maps.GeocodingRequest{Address: address}
	geocodeResponse, err := gp.client.Geocode(ctx, &req)
	if err != nil {
		return nil, classifyGoogleError(err)
	}

	if len(geocodeResponse) == 0 {
		return nil, ErrEmptyResponse
	}
	coords := geocodeResponse[0].Geometry.Location

	return &models.Coordinates{Longitude: coords.Lng, Latitude: coords.Lat}, nil
}

// classifyGoogleError inspects the status embedded in the client error message.
func classifyGoogleError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, googleStatusZeroResults):
		return fmt.Errorf("%w: %w", ErrNoMatch, err)
	case strings.Contains(msg, googleStatusOverQueryLimit), strings.Contains(msg, googleStatusOverDailyLimit):
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	default:
		return fmt.Errorf("failed to geocode address: %w", err)
	}
}
