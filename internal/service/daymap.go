package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/UnknownOlympus/waypoint/internal/batch"
	"github.com/UnknownOlympus/waypoint/internal/bounds"
	"github.com/UnknownOlympus/waypoint/internal/itinerary"
	"github.com/UnknownOlympus/waypoint/internal/mapsurface"
	"github.com/UnknownOlympus/waypoint/internal/markers"
	"github.com/UnknownOlympus/waypoint/internal/metrics"
	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/UnknownOlympus/waypoint/internal/repository"
	geojson "github.com/paulmach/go.geojson"
)

var (
	ErrNoRepository  = errors.New("saved trips are not configured")
	ErrNotClickable  = errors.New("map surface does not support clicks")
	ErrNotExportable = errors.New("map surface does not support export")
)

// clicker and exporter are implemented by surfaces that can be driven and
// rendered outside a browser.
type (
	clicker interface {
		Click(id string) error
	}
	exporter interface {
		FeatureCollection() *geojson.FeatureCollection
	}
	popupReader interface {
		OpenPopup() (content, markerID string, open bool)
	}
)

// DayMapService keeps one map surface in sync with the address list of the
// selected itinerary day.
//
// Every call to Sync issues a new generation. Outcomes are applied to the map
// as they arrive, but only while their generation is still the latest one;
// anything older is dropped on arrival.
type DayMapService struct {
	log         *slog.Logger          // Logger for logging service activities
	coordinator *batch.Coordinator    // Coordinator resolves the addresses of a batch
	surfaces    *mapsurface.Manager   // Surfaces creates the map surface of the mount
	repo        repository.Interface  // Repository with saved trips, may be nil
	metrics     *metrics.Metrics      // Metrics for tracking service performance

	generation atomic.Uint64

	mu      sync.Mutex
	handle  *mapsurface.Handle
	markers *markers.Manager
	fitter  *bounds.Fitter
	cancel  context.CancelFunc
	pending bool
}

// SyncResult describes a settled batch.
type SyncResult struct {
	Generation uint64           `json:"generation"`
	Outcomes   []models.Outcome `json:"-"`
	Applied    bool             `json:"applied"` // Applied is false when a newer batch superseded this one.
	Markers    int              `json:"markers"`
}

// MapState is a snapshot of the mounted map region.
type MapState struct {
	Generation  uint64                     `json:"generation"`
	Pending     bool                       `json:"pending"`
	Viewport    models.Viewport            `json:"viewport"`
	Markers     []markers.Entry            `json:"markers"`
	Popup       *Popup                     `json:"popup,omitempty"`
	Features    *geojson.FeatureCollection `json:"features,omitempty"`
	Error       string                     `json:"error,omitempty"`
	Initialized bool                       `json:"initialized"`
}

// Popup is the info window currently open on the map.
type Popup struct {
	MarkerID string `json:"marker_id"`
	Content  string `json:"content"`
}

// NewDayMapService creates a new instance of DayMapService.
// repo may be nil when saved trips are not available.
func NewDayMapService(
	log *slog.Logger,
	coordinator *batch.Coordinator,
	surfaces *mapsurface.Manager,
	repo repository.Interface,
	metrics *metrics.Metrics,
) *DayMapService {
	return &DayMapService{
		log:         log,
		coordinator: coordinator,
		surfaces:    surfaces,
		repo:        repo,
		metrics:     metrics,
		fitter:      bounds.NewFitter(log),
	}
}

// Mount creates the map surface bound to container. Calling it again while
// mounted is a no-op. When the surface cannot be created the error is also
// kept for MapState.
func (s *DayMapService) Mount(ctx context.Context, container mapsurface.Container) error {
	handle, err := s.surfaces.Initialize(ctx, container)
	if err != nil {
		return fmt.Errorf("failed to mount map: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != handle {
		s.handle = handle
		s.markers = markers.NewManager(handle, s.log)
		s.fitter.Reset()
	}

	return nil
}

// Unmount supersedes any outstanding batch and destroys the surface.
func (s *DayMapService) Unmount(ctx context.Context) {
	s.mu.Lock()
	s.generation.Add(1)
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.markers != nil {
		s.markers.ClearAll(ctx)
	}
	s.handle = nil
	s.markers = nil
	s.pending = false
	s.metrics.MarkersOnMap.Set(0)
	s.mu.Unlock()

	s.surfaces.Unmount()
	s.log.InfoContext(ctx, "Map unmounted")
}

// Generation returns the latest issued generation.
func (s *DayMapService) Generation() uint64 {
	return s.generation.Load()
}

// Sync replaces the markers on the map with the given addresses and blocks
// until every address has an outcome. Markers of the previous batch are
// removed before any request is sent. When the batch is still the latest one
// at settlement the viewport is fitted to the resolved points, or reset to the
// fallback view when none resolved.
//
// The batch runs detached from ctx: cancelling ctx only stops the wait and
// returns ctx.Err(), while the batch keeps running until it settles or a
// newer batch or Unmount stops it. Per-address failures are reported in the
// outcomes.
func (s *DayMapService) Sync(ctx context.Context, addresses []string) (SyncResult, error) {
	b, settled, err := s.start(ctx, addresses)
	if err != nil {
		return SyncResult{}, err
	}

	select {
	case result := <-settled:
		return result, nil
	case <-ctx.Done():
		s.log.DebugContext(ctx, "Caller stopped waiting for batch", "generation", b.Generation)
		return SyncResult{Generation: b.Generation}, ctx.Err()
	}
}

// Submit issues a batch like Sync but returns as soon as the batch is issued.
func (s *DayMapService) Submit(ctx context.Context, addresses []string) (uint64, error) {
	b, _, err := s.start(ctx, addresses)
	if err != nil {
		return 0, err
	}

	return b.Generation, nil
}

// start issues a batch and resolves it in the background. The result is
// delivered once on the returned channel.
func (s *DayMapService) start(ctx context.Context, addresses []string) (models.AddressBatch, <-chan SyncResult, error) {
	begin := time.Now()

	b, batchCtx, handle, err := s.issue(context.WithoutCancel(ctx), addresses)
	if err != nil {
		return models.AddressBatch{}, nil, err
	}

	s.log.InfoContext(ctx, "Address batch issued",
		"generation", b.Generation, "addresses", len(b.Addresses), "pending", b.Pending())

	settled := make(chan SyncResult, 1)
	go func() {
		outcomes := s.coordinator.Resolve(batchCtx, b, func(o models.Outcome) { s.apply(batchCtx, o) })
		settled <- s.settle(batchCtx, b.Generation, handle, outcomes)
		s.metrics.BatchSeconds.Observe(time.Since(begin).Seconds())
	}()

	return b, settled, nil
}

// SyncDay loads a saved trip and syncs the addresses of the day at dayIndex.
func (s *DayMapService) SyncDay(ctx context.Context, tripID int64, dayIndex int) (SyncResult, error) {
	addresses, err := s.DayAddresses(ctx, tripID, dayIndex)
	if err != nil {
		return SyncResult{}, err
	}

	return s.Sync(ctx, addresses)
}

// DayAddresses returns the locations of one day of a saved trip.
func (s *DayMapService) DayAddresses(ctx context.Context, tripID int64, dayIndex int) ([]string, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}

	raw, err := s.repo.FetchItinerary(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch itinerary: %w", err)
	}

	plan, err := itinerary.Parse(raw)
	if err != nil {
		return nil, err
	}

	return plan.DayAddresses(dayIndex)
}

// issue starts a new generation: it cancels the outstanding batch and clears
// the map synchronously, so no marker of an older batch survives past this point.
func (s *DayMapService) issue(
	ctx context.Context,
	addresses []string,
) (models.AddressBatch, context.Context, *mapsurface.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		if err := s.surfaces.Err(); err != nil {
			return models.AddressBatch{}, nil, nil, err
		}
		return models.AddressBatch{}, nil, nil, mapsurface.ErrNotInitialized
	}

	generation := s.generation.Add(1)
	if s.cancel != nil {
		s.cancel()
	}

	batchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.pending = true

	s.markers.ClearAll(ctx)
	s.fitter.Reset()
	s.metrics.MarkersOnMap.Set(0)
	s.metrics.BatchesTotal.Inc()

	return models.NewAddressBatch(generation, addresses), batchCtx, s.handle, nil
}

// apply places the marker of a resolved outcome if its batch is still current.
func (s *DayMapService) apply(ctx context.Context, outcome models.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if outcome.Generation != s.generation.Load() {
		s.metrics.StaleDiscarded.Inc()
		s.log.DebugContext(ctx, "Discarding stale outcome",
			"generation", outcome.Generation, "current", s.generation.Load(), "address", outcome.Address)
		return
	}

	if !outcome.Resolved() {
		return
	}

	if _, err := s.markers.Add(ctx, *outcome.Coordinates, outcome.Address); err != nil {
		s.log.WarnContext(ctx, "Could not place marker", "address", outcome.Address, "error", err)
		return
	}
	s.fitter.Extend(*outcome.Coordinates)
	s.metrics.MarkersOnMap.Set(float64(s.markers.Len()))
}

// settle fits the viewport once the whole batch has an outcome.
func (s *DayMapService) settle(
	ctx context.Context,
	generation uint64,
	handle *mapsurface.Handle,
	outcomes []models.Outcome,
) SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := SyncResult{Generation: generation, Outcomes: outcomes}

	if generation != s.generation.Load() || handle != s.handle {
		s.log.DebugContext(ctx, "Batch superseded before settling",
			"generation", generation, "current", s.generation.Load())
		return result
	}

	s.fitter.Commit(ctx, handle)
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.pending = false

	result.Applied = true
	result.Markers = s.markers.Len()

	view := handle.Viewport()
	s.log.InfoContext(ctx, "Address batch settled",
		"generation", generation,
		"outcomes", len(outcomes),
		"markers", result.Markers,
		"lat", view.Center.Latitude,
		"lng", view.Center.Longitude,
		"zoom", view.Zoom)

	return result
}

// Click forwards a click on a marker to the surface.
func (s *DayMapService) Click(ctx context.Context, markerID string) error {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()

	if handle == nil {
		return mapsurface.ErrNotInitialized
	}

	c, ok := handle.Surface.(clicker)
	if !ok {
		return ErrNotClickable
	}

	if err := c.Click(markerID); err != nil {
		return fmt.Errorf("failed to click marker: %w", err)
	}
	s.log.DebugContext(ctx, "Marker clicked", "id", markerID)

	return nil
}

// FeatureCollection exports the markers of the surface as GeoJSON.
func (s *DayMapService) FeatureCollection() (*geojson.FeatureCollection, error) {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()

	if handle == nil {
		return nil, mapsurface.ErrNotInitialized
	}

	e, ok := handle.Surface.(exporter)
	if !ok {
		return nil, ErrNotExportable
	}

	return e.FeatureCollection(), nil
}

// State returns a snapshot of the map region.
func (s *DayMapService) State() MapState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := MapState{
		Generation: s.generation.Load(),
		Pending:    s.pending,
	}

	if s.handle == nil {
		if err := s.surfaces.Err(); err != nil {
			state.Error = err.Error()
		}
		return state
	}

	state.Initialized = true
	state.Viewport = s.handle.Viewport()
	state.Markers = s.markers.Entries()

	if p, ok := s.handle.Surface.(popupReader); ok {
		if content, markerID, open := p.OpenPopup(); open {
			state.Popup = &Popup{MarkerID: markerID, Content: content}
		}
	}
	if e, ok := s.handle.Surface.(exporter); ok {
		state.Features = e.FeatureCollection()
	}

	return state
}
