package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of a Loader.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrLoadFailed is matched by every LoadError.
var ErrLoadFailed = errors.New("mapping library failed to load")

// LoadError reports a failed load attempt for an artifact.
type LoadError struct {
	ArtifactID string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.ArtifactID, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{ErrLoadFailed, e.Err}
}

// LoadFunc produces the library artifact. It runs at most once per attempt.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Option configures a Loader.
type Option func(*options)

type options struct {
	permanentFailure bool
	onAttempt        func()
	logger           *slog.Logger
}

// WithPermanentFailure keeps the loader in StateFailed after the first failed attempt.
func WithPermanentFailure() Option {
	return func(o *options) { o.permanentFailure = true }
}

// WithAttemptHook registers a callback invoked every time a real load attempt starts.
func WithAttemptHook(fn func()) Option {
	return func(o *options) { o.onAttempt = fn }
}

// WithLogger sets the logger used for state transitions.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.logger = log }
}

// Loader loads one library artifact into a Host.
type Loader[T any] struct {
	id    string
	host  Host[T]
	load  LoadFunc[T]
	opts  options
	group singleflight.Group

	mu      sync.Mutex
	state   State
	value   T
	lastErr error
}

// New creates a loader for the artifact id.
func New[T any](id string, host Host[T], load LoadFunc[T], opts ...Option) *Loader[T] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Loader[T]{id: id, host: host, load: load, opts: o}
}

// State returns the current lifecycle state.
func (l *Loader[T]) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state
}

// Ensure returns the loaded artifact, loading it first if needed.
// Callers arriving while a load is running wait for that same attempt.
// A cancelled ctx only stops the caller from waiting; the shared attempt keeps going.
func (l *Loader[T]) Ensure(ctx context.Context) (T, error) {
	var zero T

	l.mu.Lock()
	switch {
	case l.state == StateReady:
		value := l.value
		l.mu.Unlock()
		return value, nil
	case l.state == StateFailed && l.opts.permanentFailure:
		err := l.lastErr
		l.mu.Unlock()
		return zero, err
	}
	l.mu.Unlock()

	attemptCtx := context.WithoutCancel(ctx)
	resCh := l.group.DoChan(l.id, func() (any, error) {
		return l.attempt(attemptCtx)
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-resCh:
		if res.Err != nil {
			return zero, res.Err
		}
		value, _ := res.Val.(T)
		return value, nil
	}
}

// Ready blocks until the library is loaded or the attempt fails.
func (l *Loader[T]) Ready(ctx context.Context) error {
	_, err := l.Ensure(ctx)
	return err
}

func (l *Loader[T]) attempt(ctx context.Context) (T, error) {
	var zero T

	l.mu.Lock()
	if l.state == StateReady {
		value := l.value
		l.mu.Unlock()
		return value, nil
	}
	l.state = StateLoading
	l.mu.Unlock()

	if existing, ok := l.host.Lookup(l.id); ok {
		l.opts.logger.DebugContext(ctx, "Reusing mapping library already present in host", "artifact", l.id)
		return l.ready(existing), nil
	}

	if l.opts.onAttempt != nil {
		l.opts.onAttempt()
	}
	l.opts.logger.InfoContext(ctx, "Loading mapping library", "artifact", l.id)

	value, err := l.load(ctx)
	if err != nil {
		loadErr := &LoadError{ArtifactID: l.id, Err: err}

		l.mu.Lock()
		l.state = StateFailed
		l.lastErr = loadErr
		l.mu.Unlock()

		l.opts.logger.ErrorContext(ctx, "Mapping library failed to load", "artifact", l.id, "error", err)
		return zero, loadErr
	}

	stored, _ := l.host.Insert(l.id, value)

	return l.ready(stored), nil
}

func (l *Loader[T]) ready(value T) T {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state = StateReady
	l.value = value
	l.lastErr = nil

	return value
}
