package mapsurface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/UnknownOlympus/waypoint/internal/bounds"
	"github.com/UnknownOlympus/waypoint/internal/models"
)

// Errors reported upward instead of rendering a blank map.
var (
	ErrMissingCredential = errors.New("map service credential is not configured")
	ErrNotInitialized    = errors.New("map surface is not initialized")
)

// Readiness is satisfied by the library loader.
type Readiness interface {
	Ready(ctx context.Context) error
}

// ManagerConfig holds what the manager needs to create a surface.
type ManagerConfig struct {
	Credential         string       // Credential for the mapping service.
	CredentialOptional bool         // CredentialOptional is true for providers that work without a key.
	Library            Readiness    // Library must be ready before the surface is created.
	Factory            Factory      // Factory creates the provider surface.
	Logger             *slog.Logger // Logger for lifecycle events.
}

// Handle is the initialized surface of one mount.
type Handle struct {
	Surface
	Container Container
}

// Manager creates the surface for a mount exactly once and keeps the
// user-visible error when it cannot.
type Manager struct {
	cfg ManagerConfig

	mu     sync.Mutex
	handle *Handle
	err    error
}

// NewManager returns a manager with nothing mounted yet.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Factory == nil {
		cfg.Factory = NewMemorySurface
	}

	return &Manager{cfg: cfg}
}

// Initialize binds a new surface to container with the default view. When a
// surface already exists for this mount it is returned unchanged.
func (m *Manager) Initialize(ctx context.Context, container Container) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil {
		return m.handle, nil
	}

	if m.cfg.Credential == "" && !m.cfg.CredentialOptional {
		m.err = ErrMissingCredential
		m.cfg.Logger.ErrorContext(ctx, "Map surface not created", "container", container.ID, "error", m.err)
		return nil, m.err
	}

	if m.cfg.Library != nil {
		if err := m.cfg.Library.Ready(ctx); err != nil {
			m.err = err
			m.cfg.Logger.ErrorContext(ctx, "Mapping library unavailable", "container", container.ID, "error", err)
			return nil, err
		}
	}

	surface, err := m.cfg.Factory(container, models.Viewport{Center: bounds.DefaultCenter, Zoom: bounds.DefaultZoom})
	if err != nil {
		m.err = fmt.Errorf("failed to create map surface: %w", err)
		return nil, m.err
	}

	m.handle = &Handle{Surface: surface, Container: container}
	m.err = nil
	m.cfg.Logger.InfoContext(ctx, "Map surface created", "container", container.ID)

	return m.handle, nil
}

// Handle returns the surface of the current mount.
func (m *Manager) Handle() (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		if m.err != nil {
			return nil, m.err
		}
		return nil, ErrNotInitialized
	}

	return m.handle, nil
}

// Err returns the last initialization error, nil once a surface exists.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.err
}

// Unmount destroys the surface. The next Initialize creates a new one.
func (m *Manager) Unmount() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil {
		m.handle.Destroy()
		m.handle = nil
	}
}
