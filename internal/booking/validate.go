package booking

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Layouts accepted for start_time_iso. Zone-less values are read as UTC.
var startTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseArguments decodes and validates a raw create_booking payload.
// Every failure wraps ErrValidation.
func ParseArguments(raw string) (Arguments, time.Time, error) {
	var a Arguments
	if strings.TrimSpace(raw) == "" {
		return Arguments{}, time.Time{}, fmt.Errorf("%w: empty arguments", ErrValidation)
	}
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return Arguments{}, time.Time{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	a.PatientName = strings.TrimSpace(a.PatientName)
	a.PatientPhone = strings.TrimSpace(a.PatientPhone)
	a.PatientEmail = strings.TrimSpace(a.PatientEmail)
	a.AppointmentType = strings.TrimSpace(a.AppointmentType)
	a.Notes = strings.TrimSpace(a.Notes)

	if a.PatientName == "" {
		return Arguments{}, time.Time{}, fmt.Errorf("%w: patient_name is required", ErrValidation)
	}
	start, err := parseStartTime(a.StartTimeISO)
	if err != nil {
		return Arguments{}, time.Time{}, err
	}
	return a, start, nil
}

func parseStartTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: start_time_iso is required", ErrValidation)
	}
	for _, layout := range startTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: start_time_iso %q is not ISO-8601", ErrValidation, v)
}
