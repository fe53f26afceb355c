package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records call and booking lifecycle events.
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

// Scope identifies the call an event belongs to.
type Scope struct {
	TenantID  string
	SessionID string
	CallSID   string
}

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.SessionID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if e.Metadata == "" {
		e.Metadata = "{}"
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) CallStarted(ctx context.Context, sc Scope, generic bool) error {
	return s.append(ctx, sc, EventTypeCallStarted, map[string]any{"generic": generic})
}

func (s *Service) CallEnded(ctx context.Context, sc Scope, reason string, duration time.Duration) error {
	return s.append(ctx, sc, EventTypeCallEnded, map[string]any{
		"reason":      reason,
		"duration_ms": duration.Milliseconds(),
	})
}

func (s *Service) BookingCreated(ctx context.Context, sc Scope, toolCallID, appointmentID string) error {
	return s.append(ctx, sc, EventTypeBookingCreated, map[string]any{
		"tool_call_id":   toolCallID,
		"appointment_id": appointmentID,
	})
}

func (s *Service) BookingFailed(ctx context.Context, sc Scope, toolCallID, reason string) error {
	return s.append(ctx, sc, EventTypeBookingFailed, map[string]any{
		"tool_call_id": toolCallID,
		"reason":       reason,
	})
}

func (s *Service) append(ctx context.Context, sc Scope, typ EventType, meta map[string]any) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.Append(ctx, Event{
		TenantID:  sc.TenantID,
		SessionID: sc.SessionID,
		CallSID:   sc.CallSID,
		Type:      typ,
		Metadata:  string(raw),
	})
}
