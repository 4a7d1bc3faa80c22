package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/UnknownOlympus/waypoint/internal/itinerary"
	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/UnknownOlympus/waypoint/internal/service"
	"github.com/UnknownOlympus/waypoint/internal/staticmap"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

var (
	errInvalidBody    = errors.New("invalid request body")
	errInvalidTripID  = errors.New("invalid trip id")
	errInvalidDay     = errors.New("invalid day index")
	errNoStaticSource = errors.New("provide address parameters or trip and day")
	errNoRenderer     = errors.New("static map rendering is not configured")
)

type addressesRequest struct {
	Addresses []string `json:"addresses"`
}

type submittedResponse struct {
	Generation uint64 `json:"generation"`
}

type syncResponse struct {
	Result service.SyncResult `json:"result"`
	State  service.MapState   `json:"state"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.log.DebugContext(ctx, "Performing health checks...")

	status, body := http.StatusOK, "OK"
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			status, body = http.StatusServiceUnavailable, "DB ping failed"
		}
	}

	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		h.log.ErrorContext(ctx, "failed to write reply", "error", err)
	}
}

func (h *Handler) handleGetMap(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(r.Context(), w, http.StatusOK, h.dayMap.State())
}

func (h *Handler) handleGetGeoJSON(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fc, err := h.dayMap.FeatureCollection()
	if err != nil {
		h.writeError(ctx, w, statusFor(err), err)
		return
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		h.writeError(ctx, w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	if _, err = w.Write(data); err != nil {
		h.log.ErrorContext(ctx, "failed to write reply", "error", err)
	}
}

func (h *Handler) handlePutAddresses(w http.ResponseWriter, r *http.Request) {
	var req addressesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(r.Context(), w, http.StatusBadRequest, fmt.Errorf("%w: %w", errInvalidBody, err))
		return
	}

	h.issue(w, r, req.Addresses)
}

func (h *Handler) handlePutTripDay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tripID, day, err := tripDayParams(chi.URLParam(r, "tripID"), chi.URLParam(r, "day"))
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, err)
		return
	}

	addresses, err := h.dayMap.DayAddresses(ctx, tripID, day)
	if err != nil {
		h.log.WarnContext(ctx, "Could not load trip day", "trip", tripID, "day", day, "error", err)
		h.writeError(ctx, w, statusFor(err), err)
		return
	}

	h.issue(w, r, addresses)
}

// issue starts a batch. With ?wait=true the reply is sent once the batch settled.
func (h *Handler) issue(w http.ResponseWriter, r *http.Request, addresses []string) {
	ctx := r.Context()

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		result, err := h.dayMap.Sync(ctx, addresses)
		if err != nil {
			h.writeError(ctx, w, statusFor(err), err)
			return
		}
		h.writeJSON(ctx, w, http.StatusOK, syncResponse{Result: result, State: h.dayMap.State()})
		return
	}

	generation, err := h.dayMap.Submit(ctx, addresses)
	if err != nil {
		h.writeError(ctx, w, statusFor(err), err)
		return
	}
	h.writeJSON(ctx, w, http.StatusAccepted, submittedResponse{Generation: generation})
}

func (h *Handler) handleClickMarker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.dayMap.Click(ctx, chi.URLParam(r, "markerID")); err != nil {
		h.writeError(ctx, w, statusFor(err), err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, h.dayMap.State())
}

type tripSummary struct {
	ID          int64     `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Destination string    `json:"destination,omitempty"`
	Days        []string  `json:"days"`
}

func (h *Handler) handleListTrips(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.trips == nil {
		h.writeError(ctx, w, http.StatusNotImplemented, service.ErrNoRepository)
		return
	}

	trips, err := h.trips.ListTrips(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to list trips", "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, err)
		return
	}

	out := make([]tripSummary, 0, len(trips))
	for _, trip := range trips {
		summary := tripSummary{ID: trip.ID, CreatedAt: trip.CreatedAt, Days: []string{}}
		if plan, errParse := itinerary.Parse(trip.Itinerary); errParse == nil {
			summary.Destination = plan.Destination
			for i := range plan.Days {
				summary.Days = append(summary.Days, plan.Label(i))
			}
		} else {
			h.log.WarnContext(ctx, "Saved trip has an unreadable itinerary", "trip", trip.ID, "error", errParse)
		}
		out = append(out, summary)
	}

	h.writeJSON(ctx, w, http.StatusOK, out)
}

type staticMapResponse struct {
	URL       string   `json:"url"`
	SearchURL string   `json:"search_url"`
	Shown     []string `json:"shown"`
	Note      string   `json:"note,omitempty"`
}

func (h *Handler) handleStaticMap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	plan, err := h.staticPlan(r)
	if err != nil {
		h.writeError(ctx, w, statusFor(err), err)
		return
	}

	imageURL, err := plan.URL(h.apiKey)
	if err != nil {
		h.writeError(ctx, w, statusFor(err), err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, staticMapResponse{
		URL:       imageURL,
		SearchURL: plan.SearchURL,
		Shown:     plan.Shown,
		Note:      plan.Note(),
	})
}

// handleStaticMapImage renders the image server side, so the key stays private.
// Without explicit addresses the markers of the live map are used.
func (h *Handler) handleStaticMapImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.static == nil {
		h.writeError(ctx, w, http.StatusNotImplemented, errNoRenderer)
		return
	}

	var plan staticmap.Plan
	if hasStaticSource(r) {
		var err error
		if plan, err = h.staticPlan(r); err != nil {
			h.writeError(ctx, w, statusFor(err), err)
			return
		}
	} else {
		state := h.dayMap.State()
		points := make([]models.Coordinates, 0, len(state.Markers))
		labels := make([]string, 0, len(state.Markers))
		for _, m := range state.Markers {
			points = append(points, m.Coordinates)
			labels = append(labels, m.Label)
		}
		plan = staticmap.Build(labels, staticOptions(r)).Pin(points)
	}

	data, err := staticmap.RenderPNG(ctx, h.static, plan)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to render static map", "error", err)
		h.writeError(ctx, w, http.StatusBadGateway, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err = w.Write(data); err != nil {
		h.log.ErrorContext(ctx, "failed to write reply", "error", err)
	}
}

func hasStaticSource(r *http.Request) bool {
	q := r.URL.Query()
	return len(q["address"]) > 0 || q.Get("trip") != ""
}

// staticPlan builds a plan from ?address=...&address=... or ?trip=ID&day=N.
func (h *Handler) staticPlan(r *http.Request) (staticmap.Plan, error) {
	q := r.URL.Query()
	opts := staticOptions(r)

	if addresses := q["address"]; len(addresses) > 0 {
		return staticmap.Build(addresses, opts), nil
	}

	if q.Get("trip") == "" {
		return staticmap.Plan{}, errNoStaticSource
	}

	tripID, day, err := tripDayParams(q.Get("trip"), q.Get("day"))
	if err != nil {
		return staticmap.Plan{}, err
	}

	addresses, err := h.dayMap.DayAddresses(r.Context(), tripID, day)
	if err != nil {
		return staticmap.Plan{}, err
	}

	return staticmap.Build(addresses, opts), nil
}

func staticOptions(r *http.Request) staticmap.Options {
	q := r.URL.Query()
	width, _ := strconv.Atoi(q.Get("width"))
	height, _ := strconv.Atoi(q.Get("height"))
	zoom, _ := strconv.Atoi(q.Get("zoom"))

	return staticmap.Options{Width: width, Height: height, Zoom: zoom}
}

func tripDayParams(rawTrip, rawDay string) (int64, int, error) {
	tripID, err := strconv.ParseInt(rawTrip, 10, 64)
	if err != nil || tripID <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", errInvalidTripID, rawTrip)
	}

	day := 0
	if rawDay != "" {
		if day, err = strconv.Atoi(rawDay); err != nil || day < 0 {
			return 0, 0, fmt.Errorf("%w: %q", errInvalidDay, rawDay)
		}
	}

	return tripID, day, nil
}
