// Package markers tracks the markers and popups currently placed on a map
// surface for the active generation.
package markers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/UnknownOlympus/waypoint/internal/mapsurface"
	"github.com/UnknownOlympus/waypoint/internal/models"
)

// Placer creates overlays on a surface.
type Placer interface {
	AddMarker(position models.Coordinates, title string) (mapsurface.Marker, error)
	NewPopup(content string) mapsurface.Popup
}

// Entry describes a live marker.
type Entry struct {
	ID          string             `json:"id"`
	Coordinates models.Coordinates `json:"coordinates"`
	Label       string             `json:"label"`
}

type tracked struct {
	entry  Entry
	marker mapsurface.Marker
	popup  mapsurface.Popup
}

// Manager owns the marker set. It is not safe for concurrent use.
type Manager struct {
	placer  Placer
	log     *slog.Logger
	tracked []tracked
}

// NewManager returns a manager placing markers through placer.
func NewManager(placer Placer, log *slog.Logger) *Manager {
	return &Manager{placer: placer, log: log}
}

// Add places a marker labelled with the source address. Clicking it opens a
// popup showing the label.
func (m *Manager) Add(ctx context.Context, coords models.Coordinates, label string) (Entry, error) {
	marker, err := m.placer.AddMarker(coords, label)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to place marker: %w", err)
	}

	popup := m.placer.NewPopup(label)
	marker.OnClick(func() { popup.Open(marker) })

	entry := Entry{ID: marker.ID(), Coordinates: coords, Label: label}
	m.tracked = append(m.tracked, tracked{entry: entry, marker: marker, popup: popup})
	m.log.DebugContext(ctx, "Marker placed", "id", entry.ID, "label", label, "lat", coords.Latitude, "lng", coords.Longitude)

	return entry, nil
}

// ClearAll removes every tracked marker from the surface and returns how many were removed.
func (m *Manager) ClearAll(ctx context.Context) int {
	removed := len(m.tracked)
	for _, t := range m.tracked {
		t.popup.Close()
		t.marker.Remove()
	}
	m.tracked = nil

	if removed > 0 {
		m.log.DebugContext(ctx, "Markers cleared", "count", removed)
	}

	return removed
}

// Entries returns the tracked markers in placement order.
func (m *Manager) Entries() []Entry {
	out := make([]Entry, 0, len(m.tracked))
	for _, t := range m.tracked {
		out = append(out, t.entry)
	}

	return out
}

// Len returns the number of tracked markers.
func (m *Manager) Len() int {
	return len(m.tracked)
}
