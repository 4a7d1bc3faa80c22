// Package server exposes the day map over HTTP together with the health and
// metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/UnknownOlympus/waypoint/internal/itinerary"
	"github.com/UnknownOlympus/waypoint/internal/mapsurface"
	"github.com/UnknownOlympus/waypoint/internal/repository"
	"github.com/UnknownOlympus/waypoint/internal/service"
	"github.com/UnknownOlympus/waypoint/internal/staticmap"
	"github.com/go-chi/chi/v5"
	geojson "github.com/paulmach/go.geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DayMap is the engine driven by the API.
type DayMap interface {
	Sync(ctx context.Context, addresses []string) (service.SyncResult, error)
	Submit(ctx context.Context, addresses []string) (uint64, error)
	DayAddresses(ctx context.Context, tripID int64, dayIndex int) ([]string, error)
	Click(ctx context.Context, markerID string) error
	FeatureCollection() (*geojson.FeatureCollection, error)
	State() service.MapState
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the handler dependencies. Trips, Static and DB may be nil.
type Config struct {
	Logger   *slog.Logger
	DayMap   DayMap
	Trips    repository.Interface
	Static   staticmap.Renderer
	APIKey   string
	DB       Pinger
	Registry *prometheus.Registry
}

// Handler serves the API.
type Handler struct {
	log    *slog.Logger
	dayMap DayMap
	trips  repository.Interface
	static staticmap.Renderer
	apiKey string
	db     Pinger
}

// NewRouter builds the HTTP routes.
func NewRouter(cfg Config) http.Handler {
	h := &Handler{
		log:    cfg.Logger,
		dayMap: cfg.DayMap,
		trips:  cfg.Trips,
		static: cfg.Static,
		apiKey: cfg.APIKey,
		db:     cfg.DB,
	}

	r := chi.NewRouter()
	r.Use(AccessMiddleware(cfg.Logger))

	r.Get("/healthz", h.handleHealth)
	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/map", func(r chi.Router) {
		r.Get("/", h.handleGetMap)
		r.Get("/geojson", h.handleGetGeoJSON)
		r.Put("/addresses", h.handlePutAddresses)
		r.Post("/markers/{markerID}/click", h.handleClickMarker)
	})
	r.Put("/trips/{tripID}/days/{day}", h.handlePutTripDay)
	r.Get("/users/{userID}/trips", h.handleListTrips)
	r.Get("/static-map", h.handleStaticMap)
	r.Get("/static-map.png", h.handleStaticMapImage)

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.ErrorContext(ctx, "failed to write reply", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	h.writeJSON(ctx, w, status, errorResponse{Error: err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalidBody),
		errors.Is(err, errInvalidTripID),
		errors.Is(err, errInvalidDay),
		errors.Is(err, errNoStaticSource):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrTripNotFound),
		errors.Is(err, itinerary.ErrDayNotFound),
		errors.Is(err, itinerary.ErrNoDays),
		errors.Is(err, mapsurface.ErrMarkerNotFound):
		return http.StatusNotFound
	case errors.Is(err, mapsurface.ErrMissingCredential),
		errors.Is(err, mapsurface.ErrNotInitialized):
		return http.StatusConflict
	case errors.Is(err, service.ErrNoRepository),
		errors.Is(err, service.ErrNotClickable),
		errors.Is(err, service.ErrNotExportable):
		return http.StatusNotImplemented
	case errors.Is(err, staticmap.ErrMissingAPIKey):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
