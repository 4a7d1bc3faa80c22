package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	OutcomesTotal    *prometheus.CounterVec
	RequestSeconds   *prometheus.HistogramVec
	InFlight         prometheus.Gauge
	RateLimitRetries prometheus.Counter
	BatchesTotal     prometheus.Counter
	BatchSeconds     prometheus.Histogram
	StaleDiscarded   prometheus.Counter
	MarkersOnMap     prometheus.Gauge
	LoaderAttempts   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		OutcomesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "daymap_geocode_outcomes_total",
			Help: "Total number of address resolutions by outcome kind.",
		}, []string{"kind"}),
		RequestSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "daymap_geocode_request_duration_seconds",
			Help:    "Duration of requests to the geocoding provider API.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		InFlight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "daymap_geocode_requests_in_flight",
			Help: "Current number of outstanding geocoding requests.",
		}),
		RateLimitRetries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "daymap_geocode_rate_limit_retries_total",
			Help: "Total number of requeued rate-limited requests.",
		}),
		BatchesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "daymap_batches_total",
			Help: "Total number of address batches issued.",
		}),
		BatchSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "daymap_batch_settle_duration_seconds",
			Help:    "Time from issuing an address batch until every address has an outcome.",
			Buckets: prometheus.DefBuckets,
		}),
		StaleDiscarded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "daymap_stale_outcomes_discarded_total",
			Help: "Total number of outcomes dropped because a newer batch was issued.",
		}),
		MarkersOnMap: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "daymap_markers",
			Help: "Number of markers currently placed on the map surface.",
		}),
		LoaderAttempts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "daymap_library_load_attempts_total",
			Help: "Total number of mapping library load attempts.",
		}),
	}
}
