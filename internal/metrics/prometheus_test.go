package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	return w.Body.String()
}

// TestNewPrometheusMetrics verifies constructor creates valid instance
func TestNewPrometheusMetrics(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
	}{
		{name: "Default namespace", namespace: "pdp"},
		{name: "Underscored namespace", namespace: "trading_pdp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewPrometheusMetrics(tt.namespace)
			require.NotNil(t, m)

			body := scrape(t, m)
			assert.Contains(t, body, tt.namespace+"_active_requests")
			assert.Contains(t, body, tt.namespace+"_config_swaps_total")
		})
	}
}

func TestPrometheusMetrics_RecordDecision(t *testing.T) {
	m := NewPrometheusMetrics("pdp_test")

	m.RecordDecision("allowed", true, 3*time.Microsecond)
	m.RecordDecision("allowed", true, 4*time.Microsecond)
	m.RecordDecision("circuit-breaker", false, 2*time.Microsecond)

	body := scrape(t, m)
	assert.Contains(t, body, `pdp_test_decisions_total{allow="true",code="allowed"} 2`)
	assert.Contains(t, body, `pdp_test_decisions_total{allow="false",code="circuit-breaker"} 1`)
	assert.Contains(t, body, "pdp_test_decision_duration_microseconds_count 3")

	allowed, denied := m.Counts()
	assert.Equal(t, uint64(2), allowed)
	assert.Equal(t, uint64(1), denied)
}

func TestPrometheusMetrics_Gauge_Increment_Decrement(t *testing.T) {
	m := NewPrometheusMetrics("pdp_test")
	assert.Contains(t, scrape(t, m), "pdp_test_active_requests 0")

	m.IncActiveRequests()
	m.IncActiveRequests()
	m.IncActiveRequests()
	assert.Contains(t, scrape(t, m), "pdp_test_active_requests 3")

	m.DecActiveRequests()
	assert.Contains(t, scrape(t, m), "pdp_test_active_requests 2")
}

func TestPrometheusMetrics_Counters(t *testing.T) {
	m := NewPrometheusMetrics("pdp_test")

	m.RecordConfigSwap()
	m.RecordTransportError("http", "bad_request")
	m.RecordTransportError("http", "bad_request")
	m.RecordTransportError("grpc", "invalid_argument")
	m.RecordAuditDropped()

	body := scrape(t, m)
	assert.Contains(t, body, "pdp_test_config_swaps_total 1")
	assert.Contains(t, body, `pdp_test_transport_errors_total{kind="bad_request",transport="http"} 2`)
	assert.Contains(t, body, `pdp_test_transport_errors_total{kind="invalid_argument",transport="grpc"} 1`)
	assert.Contains(t, body, "pdp_test_audit_dropped_total 1")
}

func TestNoOpMetrics(t *testing.T) {
	m := NewNoOpMetrics()
	m.RecordDecision("allowed", true, time.Microsecond)
	m.RecordConfigSwap()
	m.RecordTransportError("http", "x")
	m.IncActiveRequests()
	m.DecActiveRequests()
	m.RecordAuditDropped()

	assert.Contains(t, scrape(t, m), "NoOp metrics")
}

var (
	_ Metrics = (*PrometheusMetrics)(nil)
	_ Metrics = (*NoOpMetrics)(nil)
)
