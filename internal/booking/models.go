package booking

import (
	"context"
	"errors"
	"time"
)

// ToolName is the only tool the AI leg is allowed to call.
const ToolName = "create_booking"

// Invocation is one function call emitted by the AI leg.
// Arguments is the raw JSON string exactly as the provider sent it.
type Invocation struct {
	CallID    string `json:"call_id"`
	ToolName  string `json:"name"`
	Arguments string `json:"arguments"`
}

// Result is relayed back to the AI leg as the function call output.
type Result struct {
	Success       bool   `json:"success"`
	AppointmentID string `json:"appointmentId,omitempty"`
	ErrorReason   string `json:"errorReason,omitempty"`
}

const (
	ReasonValidation      = "validation"
	ReasonPersistence     = "persistence"
	ReasonNoTenant        = "no_tenant"
	ReasonUnsupportedTool = "unsupported_tool"
)

func Failed(reason string) Result { return Result{Success: false, ErrorReason: reason} }

// Arguments is the decoded create_booking payload.
type Arguments struct {
	PatientName     string `json:"patient_name"`
	PatientPhone    string `json:"patient_phone,omitempty"`
	PatientEmail    string `json:"patient_email,omitempty"`
	StartTimeISO    string `json:"start_time_iso"`
	AppointmentType string `json:"appointment_type,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// Appointment is the row written to the scheduling store.
type Appointment struct {
	ID              string    `json:"id" db:"id"`
	TenantID        string    `json:"tenant_id" db:"tenant_id"`
	PatientName     string    `json:"patient_name" db:"patient_name"`
	PatientPhone    string    `json:"patient_phone,omitempty" db:"patient_phone"`
	PatientEmail    string    `json:"patient_email,omitempty" db:"patient_email"`
	StartTime       time.Time `json:"start_time" db:"start_time"`
	AppointmentType string    `json:"appointment_type,omitempty" db:"appointment_type"`
	Notes           string    `json:"notes,omitempty" db:"notes"`
	SourceCallSID   string    `json:"source_call_sid,omitempty" db:"source_call_sid"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// AppointmentStore is the external scheduling store.
// Each call creates exactly one row and returns its id.
type AppointmentStore interface {
	CreateAppointment(ctx context.Context, a Appointment) (string, error)
}

var ErrValidation = errors.New("booking: invalid arguments")
