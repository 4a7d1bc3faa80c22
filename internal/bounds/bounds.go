// Package bounds accumulates resolved coordinates for one batch and moves the
// map viewport so that all of them are visible.
package bounds

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/golang/geo/s2"
)

// Viewport defaults shared by every surface.
const (
	DefaultZoom  = 12 // DefaultZoom is used when a surface is created.
	FallbackZoom = 2  // FallbackZoom is the wide view shown when nothing resolved.
	MaxFitZoom   = 17 // MaxFitZoom caps fitting, so a single point is not shown at street level.
	tileSize     = 256
)

// DefaultCenter is the neutral world center.
var DefaultCenter = models.Coordinates{Latitude: 0, Longitude: 0}

var (
	ErrEmptyBounds   = errors.New("bounds contain no coordinates")
	ErrNoDisplayArea = errors.New("display area has no size")
)

// Target is the part of a map surface the fitter drives.
type Target interface {
	FitBounds(rect s2.Rect) error
	SetCenter(center models.Coordinates)
	SetZoom(zoom int)
}

// Fitter is the per-batch bounds accumulator.
// It is not safe for concurrent use; the owner serialises access.
type Fitter struct {
	rect  s2.Rect
	count int
	log   *slog.Logger
}

// NewFitter returns an empty fitter.
func NewFitter(log *slog.Logger) *Fitter {
	return &Fitter{rect: s2.EmptyRect(), log: log}
}

// Reset drops everything accumulated for the previous batch.
func (f *Fitter) Reset() {
	f.rect = s2.EmptyRect()
	f.count = 0
}

// Extend grows the bounds to contain coords.
func (f *Fitter) Extend(coords models.Coordinates) {
	f.rect = f.rect.AddPoint(s2.LatLngFromDegrees(coords.Latitude, coords.Longitude))
	f.count++
}

// Len returns how many coordinates were accumulated.
func (f *Fitter) Len() int {
	return f.count
}

// Bounds returns the accumulated rectangle.
func (f *Fitter) Bounds() s2.Rect {
	return f.rect
}

// Commit applies the accumulated bounds to target. With no coordinates the
// viewport goes back to the fallback world view instead of keeping the
// previous batch's region. A failed fit leaves the viewport untouched.
// It reports whether the viewport was changed.
func (f *Fitter) Commit(ctx context.Context, target Target) bool {
	if f.count == 0 {
		target.SetCenter(DefaultCenter)
		target.SetZoom(FallbackZoom)
		return true
	}

	if err := target.FitBounds(f.rect); err != nil {
		f.log.DebugContext(ctx, "Fitting bounds failed, viewport left unchanged", "points", f.count, "error", err)
		return false
	}

	return true
}

// FitViewport computes the center and the largest zoom at which rect fits into
// a width x height pixel area on a web mercator map.
func FitViewport(rect s2.Rect, width, height int) (models.Viewport, error) {
	if rect.IsEmpty() {
		return models.Viewport{}, ErrEmptyBounds
	}
	if width <= 0 || height <= 0 {
		return models.Viewport{}, ErrNoDisplayArea
	}

	center := rect.Center()
	view := models.Viewport{
		Center: models.Coordinates{Latitude: center.Lat.Degrees(), Longitude: center.Lng.Degrees()},
		Zoom:   MaxFitZoom,
	}

	latFraction := (mercatorY(rect.Lo().Lat.Radians()) - mercatorY(rect.Hi().Lat.Radians())) / math.Pi
	lngFraction := rect.Lng.Length() / (2 * math.Pi)

	zoom := math.Min(
		zoomFor(float64(height), math.Abs(latFraction)),
		zoomFor(float64(width), lngFraction),
	)
	if zoom < float64(MaxFitZoom) {
		view.Zoom = max(0, int(math.Floor(zoom)))
	}

	return view, nil
}

func zoomFor(pixels, fraction float64) float64 {
	if fraction <= 0 {
		return math.Inf(1)
	}

	return math.Log2(pixels / tileSize / fraction)
}

// mercatorY projects a latitude in radians, clamped to the mercator range.
func mercatorY(lat float64) float64 {
	sin := math.Sin(lat)
	radX2 := math.Log((1+sin)/(1-sin)) / 2

	return math.Max(math.Min(radX2, math.Pi), -math.Pi) / 2
}
