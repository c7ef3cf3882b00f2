package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements Metrics using Prometheus
type PrometheusMetrics struct {
	// Plain counters kept alongside Prometheus for cheap in-process reads
	allowed atomic.Uint64
	denied  atomic.Uint64

	decisionsTotal   *prometheus.CounterVec
	decisionDuration prometheus.Histogram
	configSwaps      prometheus.Counter
	transportErrors  *prometheus.CounterVec
	activeRequests   prometheus.Gauge
	auditDropped     prometheus.Counter

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	// Register standard Go metrics
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	decisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total number of policy decisions by outcome and reason code",
		},
		[]string{"allow", "code"},
	)

	// Evaluation is a handful of set lookups: 1µs to 1ms
	decisionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_microseconds",
			Help:      "Policy evaluation latency in microseconds",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
		},
	)

	configSwaps := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "swaps_total",
			Help:      "Total number of policy configuration replacements",
		},
	)

	transportErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Total number of rejected or failed transport requests",
		},
		[]string{"transport", "kind"},
	)

	activeRequests := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Number of in-flight decision requests",
		},
	)

	auditDropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "dropped_total",
			Help:      "Audit records dropped because the buffer was full",
		},
	)

	registry.MustRegister(
		decisionsTotal,
		decisionDuration,
		configSwaps,
		transportErrors,
		activeRequests,
		auditDropped,
	)

	return &PrometheusMetrics{
		decisionsTotal:   decisionsTotal,
		decisionDuration: decisionDuration,
		configSwaps:      configSwaps,
		transportErrors:  transportErrors,
		activeRequests:   activeRequests,
		auditDropped:     auditDropped,
		registry:         registry,
	}
}

// RecordDecision records one evaluation
func (p *PrometheusMetrics) RecordDecision(code string, allow bool, duration time.Duration) {
	if allow {
		p.allowed.Add(1)
	} else {
		p.denied.Add(1)
	}

	p.decisionsTotal.WithLabelValues(strconv.FormatBool(allow), code).Inc()
	p.decisionDuration.Observe(float64(duration.Nanoseconds()) / 1000)
}

// RecordConfigSwap records a configuration replacement
func (p *PrometheusMetrics) RecordConfigSwap() {
	p.configSwaps.Inc()
}

// RecordTransportError records a rejected or failed transport request
func (p *PrometheusMetrics) RecordTransportError(transport, kind string) {
	p.transportErrors.WithLabelValues(transport, kind).Inc()
}

// IncActiveRequests increments active requests
func (p *PrometheusMetrics) IncActiveRequests() {
	p.activeRequests.Inc()
}

// DecActiveRequests decrements active requests
func (p *PrometheusMetrics) DecActiveRequests() {
	p.activeRequests.Dec()
}

// RecordAuditDropped records an audit record lost to buffer overflow
func (p *PrometheusMetrics) RecordAuditDropped() {
	p.auditDropped.Inc()
}

// Counts returns the allow and deny totals since start
func (p *PrometheusMetrics) Counts() (allowed, denied uint64) {
	return p.allowed.Load(), p.denied.Load()
}

// HTTPHandler returns the Prometheus HTTP handler for /metrics endpoint
func (p *PrometheusMetrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
