package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - session_id is required; tenant_id is empty for generic (tenant-less) calls.
// - audit is best-effort; do not block live calls on audit failures.
type Event struct {
	ID        string `json:"id" db:"id"`
	TenantID  string `json:"tenant_id,omitempty" db:"tenant_id"`
	SessionID string `json:"session_id" db:"session_id"`
	CallSID   string `json:"call_sid,omitempty" db:"call_sid"`

	Type EventType `json:"type" db:"type"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallStarted    EventType = "call_started"
	EventTypeCallEnded      EventType = "call_ended"
	EventTypeBookingCreated EventType = "booking_created"
	EventTypeBookingFailed  EventType = "booking_failed"
)
