package bounds_test

import (
	"log/slog"
	"testing"

	"github.com/UnknownOlympus/waypoint/internal/bounds"
	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/golang/geo/s2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	paris  = models.Coordinates{Latitude: 48.8566, Longitude: 2.3522}
	london = models.Coordinates{Latitude: 51.5074, Longitude: -0.1278}
)

type fakeTarget struct {
	fitErr  error
	fitted  []s2.Rect
	centers []models.Coordinates
	zooms   []int
}

func (f *fakeTarget) FitBounds(rect s2.Rect) error {
	if f.fitErr != nil {
		return f.fitErr
	}
	f.fitted = append(f.fitted, rect)
	return nil
}

func (f *fakeTarget) SetCenter(center models.Coordinates) { f.centers = append(f.centers, center) }
func (f *fakeTarget) SetZoom(zoom int)                    { f.zooms = append(f.zooms, zoom) }

func TestFitter_Commit(t *testing.T) {
	ctx := t.Context()

	t.Run("no coordinates resets to fallback view", func(t *testing.T) {
		target := &fakeTarget{}
		fitter := bounds.NewFitter(slog.Default())

		changed := fitter.Commit(ctx, target)

		assert.True(t, changed)
		assert.Empty(t, target.fitted)
		assert.Equal(t, []models.Coordinates{bounds.DefaultCenter}, target.centers)
		assert.Equal(t, []int{bounds.FallbackZoom}, target.zooms)
	})

	t.Run("fits accumulated coordinates", func(t *testing.T) {
		target := &fakeTarget{}
		fitter := bounds.NewFitter(slog.Default())
		fitter.Extend(paris)
		fitter.Extend(london)

		changed := fitter.Commit(ctx, target)

		assert.True(t, changed)
		require.Len(t, target.fitted, 1)
		assert.True(t, target.fitted[0].ContainsLatLng(s2.LatLngFromDegrees(paris.Latitude, paris.Longitude)))
		assert.True(t, target.fitted[0].ContainsLatLng(s2.LatLngFromDegrees(london.Latitude, london.Longitude)))
		assert.Empty(t, target.centers)
	})

	t.Run("fit failure is swallowed", func(t *testing.T) {
		target := &fakeTarget{fitErr: assert.AnError}
		fitter := bounds.NewFitter(slog.Default())
		fitter.Extend(paris)

		changed := fitter.Commit(ctx, target)

		assert.False(t, changed)
		assert.Empty(t, target.centers)
		assert.Empty(t, target.zooms)
	})

	t.Run("reset forgets the previous batch", func(t *testing.T) {
		fitter := bounds.NewFitter(slog.Default())
		fitter.Extend(paris)
		fitter.Reset()

		assert.Equal(t, 0, fitter.Len())
		assert.True(t, fitter.Bounds().IsEmpty())
	})
}

func TestFitViewport(t *testing.T) {
	t.Run("two cities", func(t *testing.T) {
		rect := s2.EmptyRect().
			AddPoint(s2.LatLngFromDegrees(paris.Latitude, paris.Longitude)).
			AddPoint(s2.LatLngFromDegrees(london.Latitude, london.Longitude))

		view, err := bounds.FitViewport(rect, 800, 600)

		require.NoError(t, err)
		assert.Equal(t, 7, view.Zoom)
		assert.InDelta(t, 50.18, view.Center.Latitude, 0.01)
		assert.InDelta(t, 1.11, view.Center.Longitude, 0.01)
	})

	t.Run("single point uses max zoom", func(t *testing.T) {
		rect := s2.RectFromLatLng(s2.LatLngFromDegrees(paris.Latitude, paris.Longitude))

		view, err := bounds.FitViewport(rect, 800, 600)

		require.NoError(t, err)
		assert.Equal(t, bounds.MaxFitZoom, view.Zoom)
		assert.InDelta(t, paris.Latitude, view.Center.Latitude, 1e-9)
		assert.InDelta(t, paris.Longitude, view.Center.Longitude, 1e-9)
	})

	t.Run("distant points zoom out", func(t *testing.T) {
		rect := s2.EmptyRect().
			AddPoint(s2.LatLngFromDegrees(-33.86, 151.21)).
			AddPoint(s2.LatLngFromDegrees(40.71, -74.00))

		view, err := bounds.FitViewport(rect, 800, 600)

		require.NoError(t, err)
		assert.Equal(t, 3, view.Zoom)
	})

	t.Run("empty rect", func(t *testing.T) {
		_, err := bounds.FitViewport(s2.EmptyRect(), 800, 600)

		require.ErrorIs(t, err, bounds.ErrEmptyBounds)
	})

	t.Run("no display area", func(t *testing.T) {
		rect := s2.RectFromLatLng(s2.LatLngFromDegrees(paris.Latitude, paris.Longitude))

		_, err := bounds.FitViewport(rect, 0, 600)

		require.ErrorIs(t, err, bounds.ErrNoDisplayArea)
	})
}
