// Package mapsurface owns the single map viewport bound to a display region:
// the provider surface contract, an in-process surface implementation, and
// the manager that creates the surface once per mount.
package mapsurface

import (
	"github.com/UnknownOlympus/waypoint/internal/bounds"
	"github.com/UnknownOlympus/waypoint/internal/models"
)

// Container is the display region a surface is bound to.
type Container struct {
	ID     string
	Width  int // Width in pixels.
	Height int // Height in pixels.
}

// Marker is an overlay placed on a surface.
type Marker interface {
	ID() string
	Position() models.Coordinates
	Title() string
	// OnClick registers fn to run whenever the marker is clicked.
	OnClick(fn func())
	// Remove detaches the marker from its surface. Removing twice is a no-op.
	Remove()
}

// Popup is an info window that can be anchored to a marker.
type Popup interface {
	Content() string
	Open(anchor Marker)
	Close()
}

// Surface is what a mapping provider offers for one display region.
type Surface interface {
	bounds.Target
	Viewport() models.Viewport
	AddMarker(position models.Coordinates, title string) (Marker, error)
	NewPopup(content string) Popup
	Destroy()
}

// Factory creates a surface bound to container with the initial view.
type Factory func(container Container, view models.Viewport) (Surface, error)
