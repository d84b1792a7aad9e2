package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Rate lookup sources reported by the FX cache.
const (
	SourceIdentity    = "identity"
	SourceFresh       = "fresh"
	SourceProvider    = "provider"
	SourceStale       = "stale"
	SourceUnavailable = "unavailable"
)

// Breaker states reported by the FX provider circuit.
const (
	CircuitClosed   = 0
	CircuitOpen     = 1
	CircuitHalfOpen = 2
)

// Collector owns the Prometheus series emitted by the ledger and rate cache.
// A nil *Collector is valid and records nothing.
type Collector struct {
	ledgerOps      *prometheus.CounterVec
	ledgerLatency  *prometheus.HistogramVec
	rateLookups    *prometheus.CounterVec
	providerErrors prometheus.Counter
	providerTime   prometheus.Histogram
	circuitState   prometheus.Gauge
	eventsFailed   prometheus.Counter
}

// NewCollector creates the collectors under namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		ledgerOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_operations_total",
				Help:      "Ledger operations by kind and outcome",
			},
			[]string{"operation", "outcome"},
		),
		ledgerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ledger_operation_duration_seconds",
				Help:      "Ledger operation latency including lock waits and commit",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"operation"},
		),
		rateLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fx_rate_lookups_total",
				Help:      "Rate lookups by the source that answered them",
			},
			[]string{"source"},
		),
		providerErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fx_provider_errors_total",
				Help:      "Failed calls to the upstream rate provider",
			},
		),
		providerTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fx_provider_duration_seconds",
				Help:      "Upstream rate provider latency",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		circuitState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "fx_provider_circuit_state",
				Help:      "Rate provider circuit state (0=closed, 1=open, 2=half-open)",
			},
		),
		eventsFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_events_failed_total",
				Help:      "Ledger events that could not be published after commit",
			},
		),
	}
}

// Register registers all metrics with the given Prometheus registry.
func (c *Collector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.ledgerOps,
		c.ledgerLatency,
		c.rateLookups,
		c.providerErrors,
		c.providerTime,
		c.circuitState,
		c.eventsFailed,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// ObserveLedgerOp records one ledger operation.
func (c *Collector) ObserveLedgerOp(operation, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.ledgerOps.WithLabelValues(operation, outcome).Inc()
	c.ledgerLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordRateLookup records which source answered a rate request.
func (c *Collector) RecordRateLookup(source string) {
	if c == nil {
		return
	}
	c.rateLookups.WithLabelValues(source).Inc()
}

// ObserveProviderCall records an upstream call and whether it failed.
func (c *Collector) ObserveProviderCall(d time.Duration, err error) {
	if c == nil {
		return
	}
	c.providerTime.Observe(d.Seconds())
	if err != nil {
		c.providerErrors.Inc()
	}
}

// SetCircuitState reports the provider breaker state.
func (c *Collector) SetCircuitState(state int) {
	if c == nil {
		return
	}
	c.circuitState.Set(float64(state))
}

// RecordEventFailure counts an event dropped after commit.
func (c *Collector) RecordEventFailure() {
	if c == nil {
		return
	}
	c.eventsFailed.Inc()
}
