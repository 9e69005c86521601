package metadata

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch attempt outcomes recorded in the attempts counter.
const (
	outcomeSuccess   = "success"
	outcomeTimeout   = "timeout"
	outcomeHTTPError = "http_error"
	outcomeNetwork   = "network_error"
	outcomeNonJSON   = "non_json"
	outcomeDecode    = "decode_error"
	outcomeTooLarge  = "too_large"
	outcomeSkipped   = "skipped"
	outcomeCancelled = "cancelled"
)

// Metrics holds the Prometheus collectors for gateway fetching.
// A nil *Metrics records nothing.
type Metrics struct {
	attempts  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	cacheHits prometheus.Counter
}

// NewMetrics registers the metadata collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kittens",
				Subsystem: "metadata",
				Name:      "fetch_attempts_total",
				Help:      "Metadata fetch attempts by gateway and outcome",
			},
			[]string{"gateway", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kittens",
				Subsystem: "metadata",
				Name:      "fetch_duration_seconds",
				Help:      "Duration of single metadata fetch attempts",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"gateway"},
		),
		cacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "kittens",
				Subsystem: "metadata",
				Name:      "cache_hits_total",
				Help:      "Metadata lookups served from the in-memory memo",
			},
		),
	}
}

func (m *Metrics) observeAttempt(gateway, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(gateway, outcome).Inc()
	if outcome != outcomeSkipped {
		m.duration.WithLabelValues(gateway).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) cacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}
