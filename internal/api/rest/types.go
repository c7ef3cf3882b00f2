package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/authz-engine/trading-pdp/internal/engine"
	"github.com/authz-engine/trading-pdp/internal/policy"
	"github.com/authz-engine/trading-pdp/pkg/types"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// BatchDecisionRequest carries several requests evaluated in one call
type BatchDecisionRequest struct {
	Requests []*types.Request `json:"requests"`
}

// BatchDecisionResponse holds one decision per request, in request order
type BatchDecisionResponse struct {
	Decisions []*types.Decision `json:"decisions"`
}

// ExplainResponse is a decision plus the outcome of every check
type ExplainResponse struct {
	Decision *types.Decision      `json:"decision"`
	Code     types.ReasonCode     `json:"code"`
	Checks   []engine.CheckResult `json:"checks"`
}

// PolicyResponse describes the configuration in force
type PolicyResponse struct {
	Fingerprint string           `json:"fingerprint"`
	Document    *policy.Document `json:"document"`
}

// PolicyValidationResponse reports the result of validating a document
type PolicyValidationResponse struct {
	Valid       bool     `json:"valid"`
	Error       string   `json:"error,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]interface{} `json:"checks,omitempty"`
}

// StatusResponse represents service status response
type StatusResponse struct {
	Version           string    `json:"version"`
	Uptime            string    `json:"uptime"`
	PolicyFingerprint string    `json:"policy_fingerprint"`
	ConfigSwaps       uint64    `json:"config_swaps"`
	Roles             []string  `json:"roles"`
	CanaryVenues      []string  `json:"canary_venues"`
	Checks            []string  `json:"checks"`
	Timestamp         time.Time `json:"timestamp"`
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		return json.NewEncoder(w).Encode(data)
	}
	return nil
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, details map[string]interface{}) {
	errResp := ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   message,
		Details:   details,
		RequestID: w.Header().Get(RequestIDHeader),
	}

	_ = WriteJSON(w, statusCode, errResp)
}
