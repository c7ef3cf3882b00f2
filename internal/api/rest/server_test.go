package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/authz-engine/trading-pdp/internal/audit"
	"github.com/authz-engine/trading-pdp/internal/engine"
	"github.com/authz-engine/trading-pdp/internal/metrics"
	"github.com/authz-engine/trading-pdp/internal/policy"
	"github.com/authz-engine/trading-pdp/pkg/types"
)

var testNow = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

type recordedDecision struct {
	requestID string
	decision  *types.Decision
}

// recordingAudit captures logged decisions
type recordingAudit struct {
	mu        sync.Mutex
	decisions []recordedDecision
}

func (a *recordingAudit) LogDecision(ctx context.Context, d *types.Decision) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.decisions = append(a.decisions, recordedDecision{requestID: audit.RequestIDFromContext(ctx), decision: d})
}

func (a *recordingAudit) LogConfigChange(context.Context, *audit.ConfigChange) {}
func (a *recordingAudit) Flush() error                                         { return nil }
func (a *recordingAudit) Close() error                                         { return nil }

func (a *recordingAudit) all() []recordedDecision {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]recordedDecision(nil), a.decisions...)
}

type testServer struct {
	*Server
	audit   *recordingAudit
	metrics *metrics.PrometheusMetrics
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()

	m := metrics.NewPrometheusMetrics("rest_test")
	eng := engine.New(policy.DefaultConfig(),
		engine.WithClock(func() time.Time { return testNow }),
		engine.WithMetrics(m),
	)
	rec := &recordingAudit{}

	cfg := DefaultConfig()
	cfg.Version = "test"
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := New(cfg, eng, rec, m, zaptest.NewLogger(t))
	require.NoError(t, err)

	return &testServer{Server: srv, audit: rec, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

const scenarioABody = `{
	"subject": "alice",
	"roles": ["trader"],
	"action": "orders.create",
	"resource": "order/123",
	"tenant": "paper",
	"context": {
		"asset_class": "crypto",
		"circuit_breaker_active": false,
		"position_size": 5,
		"position_limit": 10,
		"venue": "CCXT"
	}
}`

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestNew_RequiresEngine(t *testing.T) {
	_, err := New(DefaultConfig(), nil, nil, nil, nil)
	assert.EqualError(t, err, "engine is required")
}

func TestDecisionHandler_Allow(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/v1/decision", scenarioABody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]interface{}
	decodeBody(t, rec, &got)

	assert.Equal(t, true, got["allow"])
	assert.Equal(t, "allowed", got["reason"])
	assert.Equal(t, "paper:alice:orders.create", got["rate_limit_key"])
	assert.NotContains(t, got, "code")

	auditRecord := got["audit"].(map[string]interface{})
	assert.Equal(t, "alice", auditRecord["sub"])
	assert.Equal(t, "orders.create", auditRecord["action"])
	assert.Equal(t, "order/123", auditRecord["resource"])
	assert.Equal(t, "paper", auditRecord["tenant"])
	assert.Equal(t, true, auditRecord["allow"])
	assert.Equal(t, "allowed", auditRecord["reason"])
	assert.Equal(t, float64(testNow.UnixNano()), auditRecord["timestamp_ns"])
}

func TestDecisionHandler_DenyIsStillOK(t *testing.T) {
	srv := newTestServer(t, nil)

	body := strings.Replace(scenarioABody, `"circuit_breaker_active": false`, `"circuit_breaker_active": true`, 1)
	rec := srv.do(t, http.MethodPost, "/v1/decision", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var d types.Decision
	decodeBody(t, rec, &d)
	assert.False(t, d.Allow)
	assert.Equal(t, "circuit-breaker: circuit breaker active", d.Reason)
	assert.Equal(t, d.Reason, d.Audit.Reason)
}

func TestDecisionHandler_RoleDenied(t *testing.T) {
	srv := newTestServer(t, nil)

	body := strings.Replace(scenarioABody, `["trader"]`, `["human"]`, 1)
	rec := srv.do(t, http.MethodPost, "/v1/decision", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var d types.Decision
	decodeBody(t, rec, &d)
	assert.False(t, d.Allow)
	assert.Equal(t, types.ReasonRolePermissionDenied, types.CodeOf(d.Reason))
}

func TestDecisionHandler_RequestID(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/v1/decision", scenarioABody, RequestIDHeader, "req-abc")
	assert.Equal(t, "req-abc", rec.Header().Get(RequestIDHeader))

	rec = srv.do(t, http.MethodPost, "/v1/decision", scenarioABody)
	generated := rec.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)

	logged := srv.audit.all()
	require.Len(t, logged, 2)
	assert.Equal(t, "req-abc", logged[0].requestID)
	assert.Equal(t, generated, logged[1].requestID)
	assert.True(t, logged[0].decision.Allow)
}

func TestDecisionHandler_BadRequests(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "malformed json", body: `{"subject":`, message: "Invalid request body"},
		{name: "wrong field type", body: `{"subject": 1, "action": "a", "tenant": "t"}`, message: "Invalid request body"},
		{name: "trailing data", body: `{"subject":"a","action":"b","tenant":"c"} {}`, message: "Invalid request body"},
		{name: "missing fields", body: `{"action": "orders.create"}`, message: "missing required fields: subject, tenant"},
		{name: "empty object", body: `{}`, message: "missing required fields: subject, action, tenant"},
		{name: "colon in subject", body: `{"subject": "alice:orders.create", "action": "positions.read", "tenant": "paper"}`, message: "subject must not contain ':'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/v1/decision", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var errResp ErrorResponse
			decodeBody(t, rec, &errResp)
			assert.Equal(t, "Bad Request", errResp.Error)
			assert.Equal(t, tt.message, errResp.Message)
			assert.NotEmpty(t, errResp.RequestID)
		})
	}

	assert.Empty(t, srv.audit.all())
}

func TestDecisionHandler_BodyTooLarge(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.MaxBodyBytes = 64 })

	rec := srv.do(t, http.MethodPost, "/v1/decision", scenarioABody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecisionHandler_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/v1/decision", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBatchDecisionHandler(t *testing.T) {
	srv := newTestServer(t, nil)

	human := strings.Replace(scenarioABody, `["trader"]`, `["human"]`, 1)
	rec := srv.do(t, http.MethodPost, "/v1/decision/batch", `{"requests": [`+scenarioABody+`,`+human+`]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp BatchDecisionResponse
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Decisions, 2)
	assert.True(t, resp.Decisions[0].Allow)
	assert.False(t, resp.Decisions[1].Allow)

	assert.Len(t, srv.audit.all(), 2)
}

func TestBatchDecisionHandler_Empty(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodPost, "/v1/decision/batch", `{"requests": []}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"decisions": []}`, rec.Body.String())
}

func TestBatchDecisionHandler_Rejections(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.MaxBatchSize = 2 })

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{
			name:    "too many",
			body:    `{"requests": [` + scenarioABody + `,` + scenarioABody + `,` + scenarioABody + `]}`,
			message: "batch of 3 exceeds limit of 2 requests",
		},
		{
			name:    "null entry",
			body:    `{"requests": [` + scenarioABody + `, null]}`,
			message: "requests[1]: request cannot be null",
		},
		{
			name:    "invalid entry",
			body:    `{"requests": [{"subject": "bob"}]}`,
			message: "requests[0]: missing required fields: action, tenant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/v1/decision/batch", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var errResp ErrorResponse
			decodeBody(t, rec, &errResp)
			assert.Equal(t, tt.message, errResp.Message)
		})
	}
}

func TestExplainHandler(t *testing.T) {
	srv := newTestServer(t, nil)

	body := strings.Replace(scenarioABody, `"position_size": 5`, `"position_size": 50`, 1)
	rec := srv.do(t, http.MethodPost, "/v1/decision/explain", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ExplainResponse
	decodeBody(t, rec, &resp)
	assert.False(t, resp.Decision.Allow)
	assert.Equal(t, types.ReasonPositionLimit, resp.Code)
	require.Len(t, resp.Checks, len(engine.CheckNames())+1)
	assert.Equal(t, "role_permission", resp.Checks[0].Name)

	for _, c := range resp.Checks {
		if c.Name == "position_limit" {
			assert.False(t, c.OK)
			assert.Equal(t, "position size 50 not below limit 10", c.Detail)
		}
	}
}

func TestHealthCheckHandler(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "ok", resp.Checks["engine"])
}

func TestStatusHandler(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, policy.DefaultConfig().Fingerprint(), resp.PolicyFingerprint)
	assert.Equal(t, engine.CheckNames(), resp.Checks)
	assert.Contains(t, resp.Roles, "trader")
	assert.Equal(t, []string{"KRAKEN"}, resp.CanaryVenues)
	assert.Zero(t, resp.ConfigSwaps)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	srv.do(t, http.MethodPost, "/v1/decision", scenarioABody)
	srv.do(t, http.MethodPost, "/v1/decision", `{}`)

	rec := srv.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `rest_test_decisions_total{allow="true",code="allowed"} 1`)
	assert.Contains(t, body, `rest_test_transport_errors_total{kind="bad_request",transport="http"} 1`)
}

func TestGetPolicyHandler(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/v1/policy", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PolicyResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, policy.DefaultConfig().Fingerprint(), resp.Fingerprint)
	require.NotNil(t, resp.Document)
	assert.Equal(t, policy.APIVersion, resp.Document.APIVersion)

	rebuilt, err := policy.New(resp.Document)
	require.NoError(t, err)
	assert.Equal(t, resp.Fingerprint, rebuilt.Fingerprint())
}

func TestValidatePolicyHandler(t *testing.T) {
	srv := newTestServer(t, nil)

	valid := `
apiVersion: pdp/v1
roles:
  trader: [orders.create]
  idle: []
tenants:
  production:
    accounts: [ACC-1]
`
	rec := srv.do(t, http.MethodPost, "/v1/policy/validate", valid)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PolicyValidationResponse
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Valid)
	assert.NotEmpty(t, resp.Fingerprint)
	assert.Equal(t, []string{"role idle grants no permissions"}, resp.Warnings)

	rec = srv.do(t, http.MethodPost, "/v1/policy/validate", "apiVersion: pdp/v9\nroles: {}\n")
	require.Equal(t, http.StatusOK, rec.Code)

	resp = PolicyValidationResponse{}
	decodeBody(t, rec, &resp)
	assert.False(t, resp.Valid)
	assert.Contains(t, resp.Error, "unsupported apiVersion")

	rec = srv.do(t, http.MethodPost, "/v1/policy/validate", "roles: [unclosed")
	resp = PolicyValidationResponse{}
	decodeBody(t, rec, &resp)
	assert.False(t, resp.Valid)
	assert.True(t, strings.HasPrefix(resp.Error, "parse: "), resp.Error)

	// validation never installs the document
	assert.Zero(t, srv.engine.ConfigSwaps())
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := newTestServer(t, nil)

	handler := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var errResp ErrorResponse
	decodeBody(t, rec, &errResp)
	assert.Equal(t, "Internal server error", errResp.Message)
}

func TestCORSMiddleware(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.EnableCORS = true })

	req := httptest.NewRequest(http.MethodOptions, "/v1/decision", bytes.NewReader(nil))
	req.Header.Set("Origin", "https://desk.example")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, "https://desk.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
