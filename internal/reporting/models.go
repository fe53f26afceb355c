package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call outcomes.
// Tenant isolation: TenantID is required unless AllTenants is set, and an
// empty TenantID without AllTenants selects generic calls.

type CallsSummaryRequest struct {
	TenantID   string    `json:"tenant_id,omitempty"`
	AllTenants bool      `json:"all_tenants,omitempty"`
	Range      TimeRange `json:"range"`
}

type CallsSummary struct {
	TenantID   string    `json:"tenant_id,omitempty"`
	AllTenants bool      `json:"all_tenants,omitempty"`
	Range      TimeRange `json:"range"`

	StartedCalls int `json:"started_calls"`
	GenericCalls int `json:"generic_calls"`
	EndedCalls   int `json:"ended_calls"`
	// InProgressCalls started in range without a matching end in range.
	InProgressCalls int `json:"in_progress_calls"`

	CompletedCalls   int `json:"completed_calls"`
	CallerHangups    int `json:"caller_hangups"`
	FailedCalls      int `json:"failed_calls"`
	TimedOutCalls    int `json:"timed_out_calls"`
	InterruptedCalls int `json:"interrupted_calls"`

	ByReason map[string]int `json:"by_reason"`

	TotalDurationSeconds   int64 `json:"total_duration_seconds"`
	AverageDurationSeconds int64 `json:"average_duration_seconds"`
}

// BookingMetrics captures how many calls ended with an appointment.

type BookingMetrics struct {
	TenantID   string    `json:"tenant_id,omitempty"`
	AllTenants bool      `json:"all_tenants,omitempty"`
	Range      TimeRange `json:"range"`

	Calls            int `json:"calls"`
	CallsWithBooking int `json:"calls_with_booking"`
	BookingsCreated  int `json:"bookings_created"`
	BookingsFailed   int `json:"bookings_failed"`

	FailureReasons map[string]int `json:"failure_reasons"`

	ConversionRate float64 `json:"conversion_rate"`
}
