package app_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/UnknownOlympus/waypoint/internal/app"
	"github.com/UnknownOlympus/waypoint/internal/config"
	"github.com/UnknownOlympus/waypoint/internal/loader"
	"github.com/UnknownOlympus/waypoint/internal/mapsurface"
	"github.com/UnknownOlympus/waypoint/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(provider, key string) *config.Config {
	return &config.Config{
		Env:          "local",
		Port:         8080,
		ProviderType: provider,
		APIKey:       key,
		Map:          config.MapConfig{Width: 640, Height: 480},
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuild_LoadsLibraryOnMount(t *testing.T) {
	stack, err := app.Build(context.Background(), testConfig("nominatim", ""), discard())
	require.NoError(t, err)
	defer stack.Close()

	assert.Equal(t, loader.StateUnloaded, stack.Library.State())
	assert.Nil(t, stack.Trips)

	require.NoError(t, stack.Service.Mount(context.Background(), stack.Container("day-map")))

	assert.Equal(t, loader.StateReady, stack.Library.State())
	assert.InDelta(t, 1, testutil.ToFloat64(stack.Metrics.LoaderAttempts), 0)

	state := stack.Service.State()
	assert.True(t, state.Initialized)
	assert.Empty(t, state.Error)
}

func TestBuild_MissingCredentialSkipsLoad(t *testing.T) {
	stack, err := app.Build(context.Background(), testConfig("google", ""), discard())
	require.NoError(t, err)

	err = stack.Service.Mount(context.Background(), stack.Container("day-map"))

	require.ErrorIs(t, err, mapsurface.ErrMissingCredential)
	assert.Equal(t, loader.StateUnloaded, stack.Library.State())
	assert.NotEmpty(t, stack.Service.State().Error)
}

func TestNewLibraryLoader(t *testing.T) {
	tests := []struct {
		name       string
		provider   string
		key        string
		wantErr    bool
		wantStatic bool
	}{
		{name: "google builds static client", provider: "google", key: "test-key", wantStatic: true},
		{name: "nominatim has no static client", provider: "nominatim"},
		{name: "visicom without key fails", provider: "visicom", wantErr: true},
		{name: "unknown provider fails", provider: "bing", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.NewMetrics(prometheus.NewRegistry())
			lib := app.NewLibraryLoader(testConfig(tt.provider, tt.key), discard(), m, loader.NewRegistry[*app.Library]())

			got, err := lib.Ensure(context.Background())
			if tt.wantErr {
				require.ErrorIs(t, err, loader.ErrLoadFailed)
				assert.Equal(t, loader.StateFailed, lib.State())
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, got.Provider)
			assert.Equal(t, tt.wantStatic, got.Static != nil)
		})
	}
}

func TestStack_RouterServesState(t *testing.T) {
	stack, err := app.Build(context.Background(), testConfig("nominatim", ""), discard())
	require.NoError(t, err)
	require.NoError(t, stack.Service.Mount(context.Background(), stack.Container("day-map")))

	rec := httptest.NewRecorder()
	stack.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/map", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"initialized":true`)
}

func TestStack_StaticMapUnavailableWithoutGoogle(t *testing.T) {
	stack, err := app.Build(context.Background(), testConfig("nominatim", ""), discard())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/static-map.png?address=Paris", nil)
	stack.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
