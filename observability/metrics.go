package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// LendingMetrics tracks transaction execution and emitted events.
type LendingMetrics struct {
	transactions *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	events       *prometheus.CounterVec
	throttles    *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics
)

// ModuleMetrics returns the lazily-initialised registry for JSON-RPC
// activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trustflow",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "JSON-RPC requests segmented by module, method and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trustflow",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "JSON-RPC errors segmented by module, method and HTTP status.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "trustflow",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency of JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trustflow",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Requests refused by rate limiting.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records one JSON-RPC call. status is the HTTP status written.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	module = labelOr(module, "unknown")
	method = labelOr(method, "unknown")
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, strconv.Itoa(status)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle counts a refused request. Reasons are stable strings such
// as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(labelOr(module, "unknown"), labelOr(reason, "unspecified")).Inc()
}

// Lending returns the lazily-initialised ledger execution metrics.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trustflow",
				Subsystem: "ledger",
				Name:      "transactions_total",
				Help:      "Executed transactions by type and outcome class.",
			}, []string{"type", "outcome"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "trustflow",
				Subsystem: "ledger",
				Name:      "transaction_duration_seconds",
				Help:      "Time spent executing and committing a transaction.",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			}, []string{"type"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trustflow",
				Subsystem: "ledger",
				Name:      "events_total",
				Help:      "Committed events by type.",
			}, []string{"type"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trustflow",
				Subsystem: "ledger",
				Name:      "quota_rejections_total",
				Help:      "Transactions refused by the per-sender quota.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			lendingRegistry.transactions,
			lendingRegistry.duration,
			lendingRegistry.events,
			lendingRegistry.throttles,
		)
	})
	return lendingRegistry
}

// RecordTransaction counts one execution. An empty class means success.
func (m *LendingMetrics) RecordTransaction(txType, class string, duration time.Duration) {
	if m == nil {
		return
	}
	txType = labelOr(txType, "unknown")
	m.transactions.WithLabelValues(txType, labelOr(class, "success")).Inc()
	m.duration.WithLabelValues(txType).Observe(duration.Seconds())
}

func (m *LendingMetrics) RecordEvents(eventTypes []string) {
	if m == nil {
		return
	}
	for _, eventType := range eventTypes {
		m.events.WithLabelValues(labelOr(eventType, "unknown")).Inc()
	}
}

func (m *LendingMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(labelOr(reason, "unspecified")).Inc()
}

func labelOr(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
