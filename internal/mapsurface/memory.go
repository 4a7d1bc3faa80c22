package mapsurface

import (
	"errors"
	"fmt"
	"sync"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"github.com/UnknownOlympus/waypoint/internal/bounds"
	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/golang/geo/s2"
	"github.com/google/uuid"
	geojson "github.com/paulmach/go.geojson"
)

const geohashPrecision = 9

var (
	ErrSurfaceDestroyed = errors.New("map surface was destroyed")
	ErrMarkerNotFound   = errors.New("marker not found")
)

// MemorySurface keeps the map region state in process. It is what the HTTP
// API and the terminal client render.
type MemorySurface struct {
	mu        sync.Mutex
	container Container
	view      models.Viewport
	markers   []*memoryMarker
	popup     *memoryPopup
	destroyed bool
}

var _ Surface = (*MemorySurface)(nil)

// NewMemorySurface is a Factory.
func NewMemorySurface(container Container, view models.Viewport) (Surface, error) {
	return &MemorySurface{container: container, view: view}, nil
}

func (s *MemorySurface) SetCenter(center models.Coordinates) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.view.Center = center
}

func (s *MemorySurface) SetZoom(zoom int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.view.Zoom = zoom
}

func (s *MemorySurface) FitBounds(rect s2.Rect) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrSurfaceDestroyed
	}

	view, err := bounds.FitViewport(rect, s.container.Width, s.container.Height)
	if err != nil {
		return fmt.Errorf("failed to fit bounds: %w", err)
	}
	s.view = view

	return nil
}

func (s *MemorySurface) Viewport() models.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.view
}

func (s *MemorySurface) AddMarker(position models.Coordinates, title string) (Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return nil, ErrSurfaceDestroyed
	}

	marker := &memoryMarker{
		id:       uuid.NewString(),
		position: position,
		title:    title,
		surface:  s,
	}
	s.markers = append(s.markers, marker)

	return marker, nil
}

func (s *MemorySurface) NewPopup(content string) Popup {
	return &memoryPopup{content: content, surface: s}
}

func (s *MemorySurface) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.destroyed = true
	s.markers = nil
	s.popup = nil
}

// Click simulates a user click on the marker with the given id.
func (s *MemorySurface) Click(id string) error {
	s.mu.Lock()
	var target *memoryMarker
	for _, m := range s.markers {
		if m.id == id {
			target = m
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		return fmt.Errorf("%w: %s", ErrMarkerNotFound, id)
	}

	// Handlers may open a popup, which takes the surface lock again.
	for _, fn := range target.handlers() {
		fn()
	}

	return nil
}

// MarkerSnapshot is a read-only view of a placed marker.
type MarkerSnapshot struct {
	ID       string             `json:"id"`
	Title    string             `json:"title"`
	Position models.Coordinates `json:"position"`
}

// Markers returns the markers currently on the surface in placement order.
func (s *MemorySurface) Markers() []MarkerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]MarkerSnapshot, 0, len(s.markers))
	for _, m := range s.markers {
		out = append(out, MarkerSnapshot{ID: m.id, Title: m.title, Position: m.position})
	}

	return out
}

// OpenPopup returns the content of the open popup and its anchor marker id.
func (s *MemorySurface) OpenPopup() (content, markerID string, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.popup == nil || s.popup.anchor == nil {
		return "", "", false
	}

	return s.popup.content, s.popup.anchor.ID(), true
}

// FeatureCollection exports the markers as GeoJSON points.
func (s *MemorySurface) FeatureCollection() *geojson.FeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()

	fc := geojson.NewFeatureCollection()
	for _, m := range s.markers {
		feature := geojson.NewPointFeature([]float64{m.position.Longitude, m.position.Latitude})
		feature.ID = m.id
		feature.SetProperty("title", m.title)
		feature.SetProperty("geohash", cellHash(m.position))
		feature.SetProperty("popup_open", s.popup != nil && s.popup.anchor != nil && s.popup.anchor.ID() == m.id)
		fc.AddFeature(feature)
	}

	return fc
}

// cellHash returns a short geohash usable as a stable cell key for a marker.
func cellHash(c models.Coordinates) string {
	hash := geohash.Encode(c.Latitude, c.Longitude)
	if len(hash) > geohashPrecision {
		hash = hash[:geohashPrecision]
	}

	return hash
}

func (s *MemorySurface) removeMarker(target *memoryMarker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.markers {
		if m == target {
			s.markers = append(s.markers[:i], s.markers[i+1:]...)
			break
		}
	}
	if s.popup != nil && s.popup.anchor == Marker(target) {
		s.popup = nil
	}
}

// placed reports whether anchor is still on the surface. The caller holds s.mu.
func (s *MemorySurface) placed(anchor Marker) bool {
	for _, m := range s.markers {
		if Marker(m) == anchor {
			return true
		}
	}

	return false
}

type memoryMarker struct {
	id       string
	position models.Coordinates
	title    string
	surface  *MemorySurface

	mu      sync.Mutex
	onClick []func()
}

func (m *memoryMarker) ID() string                   { return m.id }
func (m *memoryMarker) Position() models.Coordinates { return m.position }
func (m *memoryMarker) Title() string                { return m.title }

func (m *memoryMarker) OnClick(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onClick = append(m.onClick, fn)
}

func (m *memoryMarker) Remove() {
	m.surface.removeMarker(m)
}

func (m *memoryMarker) handlers() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]func(), len(m.onClick))
	copy(out, m.onClick)

	return out
}

type memoryPopup struct {
	content string
	anchor  Marker
	surface *MemorySurface
}

func (p *memoryPopup) Content() string { return p.content }

// Open shows the popup over anchor; only one popup is open per surface.
// A marker already removed from the surface gets no popup.
func (p *memoryPopup) Open(anchor Marker) {
	p.surface.mu.Lock()
	defer p.surface.mu.Unlock()

	if !p.surface.placed(anchor) {
		return
	}

	p.anchor = anchor
	p.surface.popup = p
}

func (p *memoryPopup) Close() {
	p.surface.mu.Lock()
	defer p.surface.mu.Unlock()

	if p.surface.popup == p {
		p.surface.popup = nil
	}
	p.anchor = nil
}
