// Package app wires the day map engine from configuration. Both the HTTP
// service and the terminal client are built from it.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"

	"github.com/UnknownOlympus/waypoint/internal/batch"
	"github.com/UnknownOlympus/waypoint/internal/config"
	"github.com/UnknownOlympus/waypoint/internal/geocoding"
	"github.com/UnknownOlympus/waypoint/internal/loader"
	"github.com/UnknownOlympus/waypoint/internal/mapsurface"
	"github.com/UnknownOlympus/waypoint/internal/metrics"
	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/UnknownOlympus/waypoint/internal/repository"
	"github.com/UnknownOlympus/waypoint/internal/server"
	"github.com/UnknownOlympus/waypoint/internal/service"
	"github.com/UnknownOlympus/waypoint/internal/staticmap"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"googlemaps.github.io/maps"
)

// LibraryID identifies the mapping library in the host registry.
const LibraryID = "waypoint-maps-library"

var ErrNoStaticRenderer = errors.New("static maps require the google provider")

// Library is the loaded mapping library: the geocoder and, for Google, the
// static image client.
type Library struct {
	Provider geocoding.Provider
	Static   staticmap.Renderer
}

// Stack is the wired engine with its collaborators.
type Stack struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Library  *loader.Loader[*Library]
	Trips    repository.Interface
	Service  *service.DayMapService

	db *pgxpool.Pool
}

// NewLibraryLoader returns the loader that builds the geocoding provider on first use.
func NewLibraryLoader(
	cfg *config.Config,
	log *slog.Logger,
	m *metrics.Metrics,
	host loader.Host[*Library],
) *loader.Loader[*Library] {
	load := func(context.Context) (*Library, error) {
		providerType := geocoding.ProviderType(cfg.ProviderType)

		if providerType == geocoding.ProviderTypeGoogle {
			client, err := geocoding.NewGoogleClient(cfg.APIKey, cfg.RateLimit)
			if err != nil {
				return nil, err
			}
			return &Library{Provider: geocoding.NewGoogleProvider(client, log), Static: client}, nil
		}

		provider, err := geocoding.NewProvider(geocoding.ProviderConfig{
			Type:      providerType,
			APIKey:    cfg.APIKey,
			RateLimit: cfg.RateLimit,
			Logger:    log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create geocoding provider: %w", err)
		}

		return &Library{Provider: provider}, nil
	}

	return loader.New(LibraryID, host, load,
		loader.WithLogger(log),
		loader.WithAttemptHook(m.LoaderAttempts.Inc),
	)
}

// Build wires the engine. The database is only opened when configured.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Stack, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	stack := &Stack{
		Config:   cfg,
		Logger:   log,
		Registry: reg,
		Metrics:  appMetrics,
		Library:  NewLibraryLoader(cfg, log, appMetrics, loader.NewRegistry[*Library]()),
	}

	if cfg.Database.Enabled() {
		dtb, err := repository.NewDatabase(ctx,
			cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.Name,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		stack.db = dtb
		stack.Trips = repository.NewRepository(dtb, log)
	}

	surfaces := mapsurface.NewManager(mapsurface.ManagerConfig{
		Credential:         cfg.APIKey,
		CredentialOptional: !geocoding.ProviderType(cfg.ProviderType).RequiresAPIKey(),
		Library:            stack.Library,
		Logger:             log,
	})

	coordinator := batch.New(
		libraryProvider{lib: stack.Library},
		cfg.ProviderType,
		appMetrics,
		log,
		batch.WithConcurrency(cfg.MaxInFlight),
		batch.WithRateLimitRetries(cfg.RateLimitRetries),
		batch.WithAddressPrefix(cfg.AddrPrefix),
	)

	stack.Service = service.NewDayMapService(log, coordinator, surfaces, stack.Trips, appMetrics)

	return stack, nil
}

// Container returns the configured map region.
func (s *Stack) Container(id string) mapsurface.Container {
	return mapsurface.Container{ID: id, Width: s.Config.Map.Width, Height: s.Config.Map.Height}
}

// Router returns the HTTP API of the stack.
func (s *Stack) Router() http.Handler {
	cfg := server.Config{
		Logger:   s.Logger,
		DayMap:   s.Service,
		Trips:    s.Trips,
		APIKey:   s.Config.APIKey,
		Registry: s.Registry,
	}
	if geocoding.ProviderType(s.Config.ProviderType) == geocoding.ProviderTypeGoogle {
		cfg.Static = staticRenderer{lib: s.Library}
	}
	if s.db != nil {
		cfg.DB = s.db
	}

	return server.NewRouter(cfg)
}

// Close releases the database pool.
func (s *Stack) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// libraryProvider geocodes through the loaded library, loading it on first use.
type libraryProvider struct {
	lib *loader.Loader[*Library]
}

func (p libraryProvider) Geocode(ctx context.Context, address string) (*models.Coordinates, error) {
	lib, err := p.lib.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	return lib.Provider.Geocode(ctx, address)
}

type staticRenderer struct {
	lib *loader.Loader[*Library]
}

func (r staticRenderer) StaticMap(ctx context.Context, req *maps.StaticMapRequest) (image.Image, error) {
	lib, err := r.lib.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	if lib.Static == nil {
		return nil, ErrNoStaticRenderer
	}

	return lib.Static.StaticMap(ctx, req)
}
