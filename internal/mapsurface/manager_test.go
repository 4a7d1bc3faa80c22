package mapsurface_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/UnknownOlympus/waypoint/internal/bounds"
	"github.com/UnknownOlympus/waypoint/internal/mapsurface"
	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readinessFunc func(ctx context.Context) error

func (f readinessFunc) Ready(ctx context.Context) error { return f(ctx) }

var container = mapsurface.Container{ID: "day-map", Width: 640, Height: 480}

func TestManager_Initialize(t *testing.T) {
	ctx := t.Context()
	ready := readinessFunc(func(context.Context) error { return nil })

	t.Run("creates the surface once with the default view", func(t *testing.T) {
		created := 0
		manager := mapsurface.NewManager(mapsurface.ManagerConfig{
			Credential: "key",
			Library:    ready,
			Factory: func(c mapsurface.Container, view models.Viewport) (mapsurface.Surface, error) {
				created++
				return mapsurface.NewMemorySurface(c, view)
			},
			Logger: slog.Default(),
		})

		first, err := manager.Initialize(ctx, container)
		require.NoError(t, err)
		second, err := manager.Initialize(ctx, container)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, created)
		assert.Equal(t, models.Viewport{Center: bounds.DefaultCenter, Zoom: bounds.DefaultZoom}, first.Viewport())
		assert.Equal(t, container, first.Container)
		require.NoError(t, manager.Err())
	})

	t.Run("missing credential is a configuration error", func(t *testing.T) {
		manager := mapsurface.NewManager(mapsurface.ManagerConfig{
			Library: readinessFunc(func(context.Context) error {
				t.Error("library must not load without a credential")
				return nil
			}),
		})

		handle, err := manager.Initialize(ctx, container)

		require.Nil(t, handle)
		require.ErrorIs(t, err, mapsurface.ErrMissingCredential)
		require.ErrorIs(t, manager.Err(), mapsurface.ErrMissingCredential)
		_, err = manager.Handle()
		require.ErrorIs(t, err, mapsurface.ErrMissingCredential)
	})

	t.Run("optional credential", func(t *testing.T) {
		manager := mapsurface.NewManager(mapsurface.ManagerConfig{CredentialOptional: true, Library: ready})

		handle, err := manager.Initialize(ctx, container)

		require.NoError(t, err)
		require.NotNil(t, handle)
	})

	t.Run("library failure is reported and retried on next mount", func(t *testing.T) {
		calls := 0
		manager := mapsurface.NewManager(mapsurface.ManagerConfig{
			Credential: "key",
			Library: readinessFunc(func(context.Context) error {
				calls++
				if calls == 1 {
					return assert.AnError
				}
				return nil
			}),
		})

		_, err := manager.Initialize(ctx, container)
		require.ErrorIs(t, err, assert.AnError)
		require.ErrorIs(t, manager.Err(), assert.AnError)

		handle, err := manager.Initialize(ctx, container)
		require.NoError(t, err)
		require.NotNil(t, handle)
		require.NoError(t, manager.Err())
	})

	t.Run("factory failure", func(t *testing.T) {
		manager := mapsurface.NewManager(mapsurface.ManagerConfig{
			Credential: "key",
			Factory: func(mapsurface.Container, models.Viewport) (mapsurface.Surface, error) {
				return nil, assert.AnError
			},
		})

		_, err := manager.Initialize(ctx, container)

		require.ErrorIs(t, err, assert.AnError)
		assert.ErrorContains(t, err, "failed to create map surface")
	})
}

func TestManager_Unmount(t *testing.T) {
	manager := mapsurface.NewManager(mapsurface.ManagerConfig{Credential: "key"})

	_, err := manager.Handle()
	require.ErrorIs(t, err, mapsurface.ErrNotInitialized)

	first, err := manager.Initialize(t.Context(), container)
	require.NoError(t, err)
	_, err = first.AddMarker(models.Coordinates{Latitude: 1, Longitude: 2}, "x")
	require.NoError(t, err)

	manager.Unmount()
	_, err = manager.Handle()
	require.ErrorIs(t, err, mapsurface.ErrNotInitialized)

	second, err := manager.Initialize(t.Context(), container)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}
