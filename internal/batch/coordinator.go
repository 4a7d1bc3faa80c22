// Package batch resolves every address of an AddressBatch concurrently and
// settles only once each non-blank address has an outcome.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/UnknownOlympus/waypoint/internal/geocoding"
	"github.com/UnknownOlympus/waypoint/internal/metrics"
	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// ErrNoCoordinates is recorded when a provider reports success without a result.
var ErrNoCoordinates = errors.New("geocoding provider returned no coordinates")

// OutcomeFunc receives each outcome as soon as its request completes.
// It is called from several goroutines at once.
type OutcomeFunc func(models.Outcome)

// Coordinator fans a batch out to a geocoding provider.
type Coordinator struct {
	provider     geocoding.Provider
	providerName string
	metrics      *metrics.Metrics
	log          *slog.Logger
	concurrency  int
	retries      int
	newBackOff   func() backoff.BackOff
	addrPrefix   string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConcurrency caps the number of outstanding requests. Zero or less means no cap.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) { c.concurrency = n }
}

// WithRateLimitRetries requeues a rate-limited address up to n times with exponential backoff.
// Retries stop as soon as the batch context is cancelled.
func WithRateLimitRetries(n int) Option {
	return func(c *Coordinator) { c.retries = n }
}

// WithBackOff overrides the backoff policy used between rate-limit retries.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Coordinator) { c.newBackOff = newBackOff }
}

// WithAddressPrefix prepends prefix (country, city, ...) to every query sent to the provider.
// Outcomes keep the caller's address.
func WithAddressPrefix(prefix string) Option {
	return func(c *Coordinator) { c.addrPrefix = prefix }
}

// New creates a Coordinator for provider. providerName labels the request metrics.
func New(
	provider geocoding.Provider,
	providerName string,
	metrics *metrics.Metrics,
	log *slog.Logger,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		provider:     provider,
		providerName: providerName,
		metrics:      metrics,
		log:          log,
		newBackOff:   defaultBackOff,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func defaultBackOff() backoff.BackOff {
	const (
		initialInterval = 500 * time.Millisecond
		maxInterval     = 5 * time.Second
	)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialInterval
	b.MaxInterval = maxInterval

	return b
}

// Resolve issues one request per non-blank address and waits until all of them
// settled. A failing address never aborts its siblings. The returned outcomes
// are ordered by their index in the batch.
func (c *Coordinator) Resolve(ctx context.Context, b models.AddressBatch, onOutcome OutcomeFunc) []models.Outcome {
	var (
		mu       sync.Mutex
		outcomes = make([]models.Outcome, 0, b.Pending())
		group    errgroup.Group
	)
	if c.concurrency > 0 {
		group.SetLimit(c.concurrency)
	}

	for idx, address := range b.Addresses {
		if strings.TrimSpace(address) == "" {
			continue
		}

		group.Go(func() error {
			outcome := c.resolveOne(ctx, b.Generation, idx, address)
			if onOutcome != nil {
				onOutcome(outcome)
			}

			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()

			return nil
		})
	}

	_ = group.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Index < outcomes[j].Index })

	return outcomes
}

func (c *Coordinator) resolveOne(ctx context.Context, generation uint64, idx int, address string) models.Outcome {
	coords, err := c.geocodeWithRetry(ctx, c.addrPrefix+address)
	if err == nil && coords == nil {
		err = ErrNoCoordinates
	}

	outcome := models.Outcome{
		Generation:  generation,
		Index:       idx,
		Address:     address,
		Kind:        geocoding.Classify(err),
		Coordinates: coords,
		Err:         err,
	}

	// A cancelled batch was superseded or unmounted; its outcomes are dropped by the caller.
	if ctx.Err() != nil {
		c.log.DebugContext(ctx, "Address abandoned by superseded batch",
			"generation", generation, "index", idx, "address", address, "kind", outcome.Kind)
		return outcome
	}

	c.metrics.OutcomesTotal.WithLabelValues(string(outcome.Kind)).Inc()

	switch outcome.Kind {
	case models.OutcomeResolved:
		c.log.DebugContext(ctx, "Address resolved",
			"generation", generation, "index", idx, "address", address,
			"lat", coords.Latitude, "lng", coords.Longitude)
	case models.OutcomeNoMatch:
		c.log.InfoContext(ctx, "No match for address", "generation", generation, "index", idx, "address", address)
	case models.OutcomeRateLimited:
		c.log.WarnContext(ctx, "Geocoding rate limited, consider lowering the request rate",
			"generation", generation, "index", idx, "address", address)
	case models.OutcomeFailed:
		c.log.WarnContext(ctx, "Geocoding failed",
			"generation", generation, "index", idx, "address", address, "error", err)
	}

	return outcome
}

func (c *Coordinator) geocodeWithRetry(ctx context.Context, query string) (*models.Coordinates, error) {
	if c.retries <= 0 {
		return c.geocode(ctx, query)
	}

	var coords *models.Coordinates
	operation := func() error {
		var err error
		coords, err = c.geocode(ctx, query)
		if err != nil && !errors.Is(err, geocoding.ErrRateLimited) {
			return backoff.Permanent(err)
		}

		return err
	}
	notify := func(err error, wait time.Duration) {
		c.metrics.RateLimitRetries.Inc()
		c.log.DebugContext(ctx, "Requeueing rate limited address", "address", query, "wait", wait, "error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.retries)), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}

	return coords, nil
}

func (c *Coordinator) geocode(ctx context.Context, query string) (*models.Coordinates, error) {
	c.metrics.InFlight.Inc()
	defer c.metrics.InFlight.Dec()

	start := time.Now()
	coords, err := c.provider.Geocode(ctx, query)
	c.metrics.RequestSeconds.WithLabelValues(c.providerName).Observe(time.Since(start).Seconds())

	return coords, err
}
