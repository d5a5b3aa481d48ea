package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type lendingMetrics struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	utilisation *prometheus.GaugeVec
	supplyIndex *prometheus.GaugeVec
	borrowIndex *prometheus.GaugeVec
}

type httpMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	lendingMetricsOnce sync.Once
	lendingRegistry    *lendingMetrics

	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics
)

// Lending returns the lazily-initialised registry recording ledger operations
// and per-pool accrual state.
func Lending() *lendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &lendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kylix",
				Subsystem: "lending",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "kylix",
				Subsystem: "lending",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			utilisation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "kylix",
				Subsystem: "lending",
				Name:      "pool_utilisation_ratio",
				Help:      "Borrowed share of each pool's liquidity.",
			}, []string{"asset"}),
			supplyIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "kylix",
				Subsystem: "lending",
				Name:      "pool_supply_index",
				Help:      "Supply index of each pool at its last accrual.",
			}, []string{"asset"}),
			borrowIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "kylix",
				Subsystem: "lending",
				Name:      "pool_borrow_index",
				Help:      "Borrow index of each pool at its last accrual.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.latency,
			lendingRegistry.utilisation,
			lendingRegistry.supplyIndex,
			lendingRegistry.borrowIndex,
		)
	})
	return lendingRegistry
}

// ObserveOperation records one ledger operation. Outcome is "success" or the
// error kind that aborted it.
func (m *lendingMetrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "success"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObservePool publishes the committed accrual state of one pool.
func (m *lendingMetrics) ObservePool(asset uint32, utilisation, supplyIndex, borrowIndex float64) {
	if m == nil {
		return
	}
	label := strconv.FormatUint(uint64(asset), 10)
	m.utilisation.WithLabelValues(label).Set(utilisation)
	m.supplyIndex.WithLabelValues(label).Set(supplyIndex)
	m.borrowIndex.WithLabelValues(label).Set(borrowIndex)
}

// HTTP returns the registry used by the lendingd HTTP surface.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kylix",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "kylix",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kylix",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Requests rejected by the rate limiter.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency, httpRegistry.throttles)
	})
	return httpRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *httpMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route = strings.TrimSpace(route); route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards remain consistent.
func (m *httpMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}
