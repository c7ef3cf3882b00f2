// Package types provides the request and decision shapes shared by the
// policy engine and its transports
package types

import (
	"fmt"
	"sort"
	"strings"
)

// Context attribute names recognised by the ABAC checks
const (
	AttrAssetClass           = "asset_class"
	AttrVenue                = "venue"
	AttrNowHour              = "now_hour"
	AttrCircuitBreakerActive = "circuit_breaker_active"
	AttrDailyOrderCount      = "daily_order_count"
	AttrOrderNotional        = "order_notional"
	AttrPositionSize         = "position_size"
	AttrPositionLimit        = "position_limit"
	AttrAccountID            = "account_id"
)

// Actions the engine treats specially
const (
	ActionOrdersCreate  = "orders.create"
	ActionOrdersCancel  = "orders.cancel"
	ActionOrdersReplace = "orders.replace"
)

// ReasonCode is the machine-readable prefix of a decision reason
type ReasonCode string

const (
	ReasonAllowed              ReasonCode = "allowed"
	ReasonRolePermissionDenied ReasonCode = "role-permission-denied"
	ReasonTradingHours         ReasonCode = "trading-hours"
	ReasonCircuitBreaker       ReasonCode = "circuit-breaker"
	ReasonCanaryThrottle       ReasonCode = "canary-throttle"
	ReasonPositionLimit        ReasonCode = "position-limit"
	ReasonAccountNotAllowed    ReasonCode = "account-not-allowed"
	ReasonVenueNotAllowed      ReasonCode = "venue-not-allowed"
	ReasonMalformedContext     ReasonCode = "malformed-context"
	ReasonEvaluationError      ReasonCode = "evaluation-error"
)

// Request is a single authorization question posed by a trading service
type Request struct {
	Subject  string                 `json:"subject"`
	Roles    []string               `json:"roles"`
	Action   string                 `json:"action"`
	Resource string                 `json:"resource"`
	Tenant   string                 `json:"tenant"`
	Context  map[string]interface{} `json:"context"`
}

// Validate checks the fields a transport must reject before evaluation.
// The engine itself accepts any request.
func (r *Request) Validate() error {
	var missing []string
	if r.Subject == "" {
		missing = append(missing, "subject")
	}
	if r.Action == "" {
		missing = append(missing, "action")
	}
	if r.Tenant == "" {
		missing = append(missing, "tenant")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	// ':' separates rate-limit key segments
	if strings.Contains(r.Tenant, ":") {
		return fmt.Errorf("tenant must not contain ':'")
	}
	if strings.Contains(r.Subject, ":") {
		return fmt.Errorf("subject must not contain ':'")
	}
	return nil
}

// SortedRoles returns a sorted copy of the request roles
func (r *Request) SortedRoles() []string {
	roles := make([]string, len(r.Roles))
	copy(roles, r.Roles)
	sort.Strings(roles)
	return roles
}

// Decision is the outcome of one evaluation
type Decision struct {
	Allow        bool        `json:"allow"`
	Reason       string      `json:"reason"`
	RateLimitKey string      `json:"rate_limit_key"`
	Audit        AuditRecord `json:"audit"`

	// Code mirrors the reason prefix; not part of the wire contract
	Code ReasonCode `json:"-"`
}

// AuditRecord is the evaluation snapshot handed to the caller for persistence
type AuditRecord struct {
	Subject     string `json:"sub"`
	Action      string `json:"action"`
	Resource    string `json:"resource"`
	Tenant      string `json:"tenant"`
	Allow       bool   `json:"allow"`
	Reason      string `json:"reason"`
	TimestampNs int64  `json:"timestamp_ns"`
}

// CodeOf extracts the reason code from a reason string
func CodeOf(reason string) ReasonCode {
	if i := strings.IndexByte(reason, ':'); i >= 0 {
		return ReasonCode(reason[:i])
	}
	return ReasonCode(reason)
}
