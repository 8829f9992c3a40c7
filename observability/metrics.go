package observability

import (
	"fmt"
	"math/big"
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

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	exchangeMetricsOnce sync.Once
	exchangeRegistry    *ExchangeMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record gateway
// request activity per route group.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "p2p",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "p2p",
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total gateway errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "p2p",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "p2p",
				Subsystem: "gateway",
				Name:      "throttles_total",
				Help:      "Count of gateway requests rejected due to throttling policies.",
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

// Observe records the outcome of a gateway request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// ExchangeMetrics tracks ledger operations independent of the transport.
type ExchangeMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	settled    *prometheus.CounterVec
}

// Exchange returns the singleton ledger metrics registry.
func Exchange() *ExchangeMetrics {
	exchangeMetricsOnce.Do(func() {
		exchangeRegistry = &ExchangeMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "p2p",
				Subsystem: "exchange",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by module, operation and result code.",
			}, []string{"module", "operation", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "p2p",
				Subsystem: "exchange",
				Name:      "operation_duration_seconds",
				Help:      "Time spent inside the ledger critical section per operation.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "operation"}),
			settled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "p2p",
				Subsystem: "exchange",
				Name:      "settled_value_total",
				Help:      "Base units paid out of escrow segmented by settlement path.",
			}, []string{"path"}),
		}
		prometheus.MustRegister(exchangeRegistry.operations, exchangeRegistry.latency, exchangeRegistry.settled)
	})
	return exchangeRegistry
}

// ObserveOperation records one ledger operation. code is "OK" on success or
// the stable error code otherwise.
func (m *ExchangeMetrics) ObserveOperation(module, operation, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(module, operation, code).Inc()
	m.latency.WithLabelValues(module, operation).Observe(duration.Seconds())
}

// RecordSettlement adds value released from escrow along path (release,
// verdict, refund, cancel).
func (m *ExchangeMetrics) RecordSettlement(path string, value *big.Int) {
	if m == nil || value == nil || value.Sign() <= 0 {
		return
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	m.settled.WithLabelValues(path).Add(f)
}
