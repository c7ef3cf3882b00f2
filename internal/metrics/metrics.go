// Package metrics provides observability for the policy decision point
package metrics

import (
	"net/http"
	"time"
)

// Metrics provides observability for the decision engine and its transports
type Metrics interface {
	// Decision metrics
	RecordDecision(code string, allow bool, duration time.Duration)
	RecordConfigSwap()

	// Transport metrics
	RecordTransportError(transport, kind string)
	IncActiveRequests()
	DecActiveRequests()

	// Audit pipeline metrics
	RecordAuditDropped()

	// HTTP handler for Prometheus scraping
	HTTPHandler() http.Handler
}

// NoOpMetrics provides a no-op implementation for testing/disabled monitoring
type NoOpMetrics struct{}

// NewNoOpMetrics creates a new no-op metrics instance
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

func (n *NoOpMetrics) RecordDecision(code string, allow bool, duration time.Duration) {}
func (n *NoOpMetrics) RecordConfigSwap()                                              {}
func (n *NoOpMetrics) RecordTransportError(transport, kind string)                    {}
func (n *NoOpMetrics) IncActiveRequests()                                             {}
func (n *NoOpMetrics) DecActiveRequests()                                             {}
func (n *NoOpMetrics) RecordAuditDropped()                                            {}

// HTTPHandler returns a no-op handler
func (n *NoOpMetrics) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("# NoOp metrics - monitoring disabled\n"))
	})
}
