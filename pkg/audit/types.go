package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// EventTypeAccessDenied records a request refused by a route guard
	EventTypeAccessDenied EventType = "authz.access_denied"
	// EventTypeCacheInvalidate records an explicit permission cache invalidation
	EventTypeCacheInvalidate EventType = "authz.cache_invalidate"
	// EventTypeCheckFailed records a decision that could not be made because the role store failed
	EventTypeCheckFailed EventType = "authz.check_failed"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	TenantID string `json:"tenant_id,omitempty"`
	UserID   *int64 `json:"user_id,omitempty"`

	// Target, e.g. "page:/risks" or "table:findings"
	Resource string `json:"resource,omitempty"`
	Action   string `json:"action,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
