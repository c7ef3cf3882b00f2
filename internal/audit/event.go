package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/authz-engine/trading-pdp/pkg/types"
)

// EventType represents the type of audit event
type EventType string

const (
	EventTypeDecision       EventType = "decision"
	EventTypeConfigChange   EventType = "config_change"
	EventTypeSystemStartup  EventType = "system_startup"
	EventTypeSystemShutdown EventType = "system_shutdown"
)

// Event represents a generic audit event
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	EventID   string                 `json:"event_id"`
	RequestID string                 `json:"request_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// DecisionEvent wraps a decision's audit record with delivery metadata.
// Record is written exactly as the engine produced it.
type DecisionEvent struct {
	Timestamp    time.Time         `json:"timestamp"`
	EventType    EventType         `json:"event_type"`
	EventID      string            `json:"event_id"`
	RequestID    string            `json:"request_id,omitempty"`
	Transport    string            `json:"transport,omitempty"`
	Code         string            `json:"code"`
	RateLimitKey string            `json:"rate_limit_key"`
	Record       types.AuditRecord `json:"record"`
}

// ConfigChangeEvent records a policy configuration being installed
type ConfigChangeEvent struct {
	Timestamp           time.Time `json:"timestamp"`
	EventType           EventType `json:"event_type"`
	EventID             string    `json:"event_id"`
	Source              string    `json:"source"`
	PreviousFingerprint string    `json:"previous_fingerprint,omitempty"`
	Fingerprint         string    `json:"fingerprint"`
}

// ConfigChange describes a configuration swap
type ConfigChange struct {
	Source              string
	PreviousFingerprint string
	Fingerprint         string
}

// Kind implements Entry
func (e *Event) Kind() EventType { return e.EventType }

// Denied implements Entry; lifecycle markers never record a decision
func (e *Event) Denied() bool { return false }

// Kind implements Entry
func (e *DecisionEvent) Kind() EventType { return e.EventType }

// Denied implements Entry
func (e *DecisionEvent) Denied() bool { return !e.Record.Allow }

// Kind implements Entry
func (e *ConfigChangeEvent) Kind() EventType { return e.EventType }

// Denied implements Entry
func (e *ConfigChangeEvent) Denied() bool { return false }

func generateEventID() string {
	return "evt-" + uuid.NewString()
}

type contextKey int

const (
	requestIDKey contextKey = iota
	transportKey
)

// WithRequestID returns a context carrying the request ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithTransport returns a context carrying the transport name (http, grpc)
func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, transportKey, transport)
}

// RequestIDFromContext returns the request ID stored by WithRequestID
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func transportFromContext(ctx context.Context) string {
	return stringValue(ctx, transportKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
