package batch_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/UnknownOlympus/waypoint/internal/batch"
	"github.com/UnknownOlympus/waypoint/internal/geocoding"
	"github.com/UnknownOlympus/waypoint/internal/metrics"
	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/UnknownOlympus/waypoint/test/mocks"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newCoordinator(t *testing.T, provider geocoding.Provider, opts ...batch.Option) (*batch.Coordinator, *metrics.Metrics) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := metrics.NewMetrics(prometheus.NewRegistry())

	return batch.New(provider, "test", m, logger, opts...), m
}

func noWait() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

func TestResolve(t *testing.T) {
	paris := &models.Coordinates{Latitude: 48.8566, Longitude: 2.3522}
	london := &models.Coordinates{Latitude: 51.5074, Longitude: -0.1278}

	t.Run("classifies every non blank address", func(t *testing.T) {
		provider := mocks.NewProvider(t)
		provider.On("Geocode", mock.Anything, "Paris").Return(paris, nil).Once()
		provider.On("Geocode", mock.Anything, "Atlantis").Return(nil, geocoding.ErrNoMatch).Once()
		provider.On("Geocode", mock.Anything, "London").
			Return(nil, fmt.Errorf("%w: quota", geocoding.ErrRateLimited)).Once()
		provider.On("Geocode", mock.Anything, "Nowhere").Return(nil, assert.AnError).Once()

		coordinator, m := newCoordinator(t, provider)
		b := models.NewAddressBatch(3, []string{"Paris", "", "Atlantis", "   ", "London", "Nowhere"})

		outcomes := coordinator.Resolve(t.Context(), b, nil)

		require.Len(t, outcomes, 4)
		assert.Equal(t, []int{0, 2, 4, 5},
			[]int{outcomes[0].Index, outcomes[1].Index, outcomes[2].Index, outcomes[3].Index})
		assert.Equal(t, models.OutcomeResolved, outcomes[0].Kind)
		assert.Equal(t, paris, outcomes[0].Coordinates)
		assert.Equal(t, models.OutcomeNoMatch, outcomes[1].Kind)
		assert.Equal(t, models.OutcomeRateLimited, outcomes[2].Kind)
		assert.Equal(t, models.OutcomeFailed, outcomes[3].Kind)
		require.ErrorIs(t, outcomes[3].Err, assert.AnError)
		for _, o := range outcomes {
			assert.Equal(t, uint64(3), o.Generation)
		}

		assert.InDelta(t, 1, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("resolved")), 0)
		assert.InDelta(t, 1, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("failed")), 0)
		assert.InDelta(t, 0, testutil.ToFloat64(m.InFlight), 0)
	})

	t.Run("empty batch settles immediately", func(t *testing.T) {
		provider := mocks.NewProvider(t)
		coordinator, _ := newCoordinator(t, provider)

		calls := 0
		outcomes := coordinator.Resolve(t.Context(), models.NewAddressBatch(1, []string{"", " "}),
			func(models.Outcome) { calls++ })

		assert.Empty(t, outcomes)
		assert.Zero(t, calls)
	})

	t.Run("duplicates are resolved independently", func(t *testing.T) {
		provider := mocks.NewProvider(t)
		provider.On("Geocode", mock.Anything, "London").Return(london, nil).Twice()

		coordinator, _ := newCoordinator(t, provider)
		outcomes := coordinator.Resolve(t.Context(), models.NewAddressBatch(1, []string{"London", "London"}), nil)

		require.Len(t, outcomes, 2)
		assert.True(t, outcomes[0].Resolved())
		assert.True(t, outcomes[1].Resolved())
	})

	t.Run("callback fires before settlement", func(t *testing.T) {
		release := make(chan time.Time)
		provider := mocks.NewProvider(t)
		provider.On("Geocode", mock.Anything, "Paris").Return(paris, nil).Once()
		provider.On("Geocode", mock.Anything, "London").
			WaitUntil(release).Return(london, nil).Once()

		coordinator, _ := newCoordinator(t, provider)
		firstSeen := make(chan models.Outcome, 2)

		done := make(chan []models.Outcome)
		go func() {
			done <- coordinator.Resolve(t.Context(), models.NewAddressBatch(1, []string{"Paris", "London"}),
				func(o models.Outcome) { firstSeen <- o })
		}()

		select {
		case o := <-firstSeen:
			assert.Equal(t, "Paris", o.Address)
		case <-time.After(time.Second):
			t.Fatal("outcome callback was not invoked for the fast address")
		}

		select {
		case <-done:
			t.Fatal("batch settled while a request was still outstanding")
		default:
		}

		close(release)
		assert.Len(t, <-done, 2)
	})

	t.Run("address prefix is sent to the provider only", func(t *testing.T) {
		provider := mocks.NewProvider(t)
		provider.On("Geocode", mock.Anything, "France, Paris").Return(paris, nil).Once()

		coordinator, _ := newCoordinator(t, provider, batch.WithAddressPrefix("France, "))
		outcomes := coordinator.Resolve(t.Context(), models.NewAddressBatch(1, []string{"Paris"}), nil)

		require.Len(t, outcomes, 1)
		assert.Equal(t, "Paris", outcomes[0].Address)
	})
}

type countingProvider struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (p *countingProvider) Geocode(_ context.Context, _ string) (*models.Coordinates, error) {
	current := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	for {
		peak := p.peak.Load()
		if current <= peak || p.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	return &models.Coordinates{}, nil
}

func TestResolve_Concurrency(t *testing.T) {
	addresses := make([]string, 12)
	for i := range addresses {
		addresses[i] = fmt.Sprintf("stop %d", i)
	}

	t.Run("cap limits outstanding requests", func(t *testing.T) {
		provider := &countingProvider{}
		coordinator, _ := newCoordinator(t, provider, batch.WithConcurrency(2))

		outcomes := coordinator.Resolve(t.Context(), models.NewAddressBatch(1, addresses), nil)

		assert.Len(t, outcomes, len(addresses))
		assert.LessOrEqual(t, provider.peak.Load(), int32(2))
	})

	t.Run("callbacks may run concurrently", func(t *testing.T) {
		provider := &countingProvider{}
		coordinator, _ := newCoordinator(t, provider)

		var mu sync.Mutex
		seen := map[int]bool{}
		coordinator.Resolve(t.Context(), models.NewAddressBatch(1, addresses), func(o models.Outcome) {
			mu.Lock()
			defer mu.Unlock()
			seen[o.Index] = true
		})

		assert.Len(t, seen, len(addresses))
	})
}

func TestResolve_RateLimitRetries(t *testing.T) {
	rome := &models.Coordinates{Latitude: 41.89, Longitude: 12.49}
	limited := fmt.Errorf("%w: status 429", geocoding.ErrRateLimited)

	t.Run("requeues until resolved", func(t *testing.T) {
		provider := mocks.NewProvider(t)
		provider.On("Geocode", mock.Anything, "Rome").Return(nil, limited).Twice()
		provider.On("Geocode", mock.Anything, "Rome").Return(rome, nil).Once()

		coordinator, m := newCoordinator(t, provider,
			batch.WithRateLimitRetries(3), batch.WithBackOff(noWait))

		outcomes := coordinator.Resolve(t.Context(), models.NewAddressBatch(1, []string{"Rome"}), nil)

		require.Len(t, outcomes, 1)
		assert.True(t, outcomes[0].Resolved())
		assert.InDelta(t, 2, testutil.ToFloat64(m.RateLimitRetries), 0)
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		provider := mocks.NewProvider(t)
		provider.On("Geocode", mock.Anything, "Rome").Return(nil, limited).Times(3)

		coordinator, _ := newCoordinator(t, provider,
			batch.WithRateLimitRetries(2), batch.WithBackOff(noWait))

		outcomes := coordinator.Resolve(t.Context(), models.NewAddressBatch(1, []string{"Rome"}), nil)

		require.Len(t, outcomes, 1)
		assert.Equal(t, models.OutcomeRateLimited, outcomes[0].Kind)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		provider := mocks.NewProvider(t)
		provider.On("Geocode", mock.Anything, "Rome").Return(nil, geocoding.ErrNoMatch).Once()

		coordinator, _ := newCoordinator(t, provider,
			batch.WithRateLimitRetries(5), batch.WithBackOff(noWait))

		outcomes := coordinator.Resolve(t.Context(), models.NewAddressBatch(1, []string{"Rome"}), nil)

		require.Len(t, outcomes, 1)
		assert.Equal(t, models.OutcomeNoMatch, outcomes[0].Kind)
		assert.ErrorIs(t, outcomes[0].Err, geocoding.ErrNoMatch)
	})

	t.Run("cancelled batch stops retrying", func(t *testing.T) {
		provider := mocks.NewProvider(t)
		provider.On("Geocode", mock.Anything, "Rome").Return(nil, limited).Once()

		coordinator, _ := newCoordinator(t, provider,
			batch.WithRateLimitRetries(10),
			batch.WithBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(time.Hour) }))

		ctx, cancel := context.WithCancel(t.Context())
		time.AfterFunc(20*time.Millisecond, cancel)

		outcomes := coordinator.Resolve(ctx, models.NewAddressBatch(1, []string{"Rome"}), nil)

		require.Len(t, outcomes, 1)
		assert.NotEqual(t, models.OutcomeResolved, outcomes[0].Kind)
		assert.True(t, errors.Is(outcomes[0].Err, context.Canceled) ||
			errors.Is(outcomes[0].Err, geocoding.ErrRateLimited))
	})
}

// blockingProvider waits for ctx like the HTTP providers do.
type blockingProvider struct {
	started chan struct{}
}

func (p *blockingProvider) Geocode(ctx context.Context, _ string) (*models.Coordinates, error) {
	p.started <- struct{}{}
	<-ctx.Done()
	return nil, fmt.Errorf("failed to execute geocoding request: %w", ctx.Err())
}

func TestResolve_CancelledBatch(t *testing.T) {
	provider := &blockingProvider{started: make(chan struct{}, 1)}
	coordinator, m := newCoordinator(t, provider)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan []models.Outcome)
	go func() {
		done <- coordinator.Resolve(ctx, models.NewAddressBatch(1, []string{"Paris"}), nil)
	}()

	<-provider.started
	cancel()

	var outcomes []models.Outcome
	select {
	case outcomes = <-done:
	case <-time.After(time.Second):
		t.Fatal("cancelled batch did not settle")
	}

	require.Len(t, outcomes, 1)
	require.ErrorIs(t, outcomes[0].Err, context.Canceled)
	assert.InDelta(t, 0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("failed")), 0)
}

func TestResolve_EmptySuccessIsFailure(t *testing.T) {
	provider := mocks.NewProvider(t)
	provider.On("Geocode", mock.Anything, "Paris").Return(nil, nil).Once()
	coordinator, m := newCoordinator(t, provider)

	outcomes := coordinator.Resolve(t.Context(), models.NewAddressBatch(1, []string{"Paris"}), nil)

	require.Len(t, outcomes, 1)
	assert.Equal(t, models.OutcomeFailed, outcomes[0].Kind)
	require.ErrorIs(t, outcomes[0].Err, batch.ErrNoCoordinates)
	assert.False(t, outcomes[0].Resolved())
	assert.InDelta(t, 1, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("failed")), 0)
}
