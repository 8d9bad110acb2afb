// Package metrics defines the prometheus collectors stampview exports.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup results.
const (
	ResultHit  = "hit"
	ResultMiss = "miss"
)

// Transaction outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeCanceled  = "canceled"
)

// Metrics groups the collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	cacheRequests      *prometheus.CounterVec
	cacheBuildDuration *prometheus.HistogramVec
	transactions       *prometheus.CounterVec
	stampsFinalized    prometheus.Counter
	activeTransactions prometheus.Gauge
	registryMisses     prometheus.Counter
	integrityErrors    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg yields
// working but unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		cacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stampview_calculator_cache_total",
			Help: "Calculator cache lookups by cache and result",
		}, []string{"cache", "result"}),
		cacheBuildDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stampview_calculator_build_duration_seconds",
			Help:    "Calculator construction duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
		}, []string{"cache"}),
		transactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stampview_transactions_total",
			Help: "Resolved transactions by outcome",
		}, []string{"outcome"}),
		stampsFinalized: f.NewCounter(prometheus.CounterOpts{
			Name: "stampview_stamps_finalized_total",
			Help: "Stamps given a commit time or a cancellation tombstone",
		}),
		activeTransactions: f.NewGauge(prometheus.GaugeOpts{
			Name: "stampview_active_transactions",
			Help: "Transactions currently open",
		}),
		registryMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "stampview_transaction_registry_misses_total",
			Help: "Single-version commits or cancels that had to synthesize a transaction",
		}),
		integrityErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stampview_integrity_errors_total",
			Help: "Data integrity failures by code",
		}, []string{"code"}),
	}
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := ResultMiss
	if hit {
		result = ResultHit
	}
	m.cacheRequests.WithLabelValues(cache, result).Inc()
}

// CacheBuild records how long constructing a cached value took.
func (m *Metrics) CacheBuild(cache string, d time.Duration) {
	if m == nil {
		return
	}
	m.cacheBuildDuration.WithLabelValues(cache).Observe(d.Seconds())
}

// TransactionOpened increments the active gauge.
func (m *Metrics) TransactionOpened() {
	if m == nil {
		return
	}
	m.activeTransactions.Inc()
}

// TransactionResolved records an outcome and the stamps it finalized.
func (m *Metrics) TransactionResolved(outcome string, stamps int) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(outcome).Inc()
	m.stampsFinalized.Add(float64(stamps))
	m.activeTransactions.Dec()
}

// RegistryMiss records a single-version resolution that found no owning
// transaction.
func (m *Metrics) RegistryMiss() {
	if m == nil {
		return
	}
	m.registryMisses.Inc()
}

// IntegrityError records a data integrity failure.
func (m *Metrics) IntegrityError(code string) {
	if m == nil {
		return
	}
	m.integrityErrors.WithLabelValues(code).Inc()
}
