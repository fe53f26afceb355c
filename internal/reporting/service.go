package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"clinic-voice-bridge/internal/audit"
	"clinic-voice-bridge/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Methods must enforce tenant filtering.
// - Reports are derived from the append-only audit log, never from live state.
type Repository interface {
	ListEvents(ctx context.Context, tenantID string, allTenants bool, from, to time.Time) ([]audit.Event, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

type endedMeta struct {
	Reason     string `json:"reason"`
	DurationMS int64  `json:"duration_ms"`
}

type startedMeta struct {
	Generic bool `json:"generic"`
}

type bookingMeta struct {
	Reason string `json:"reason"`
}

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	events, err := s.list(ctx, req)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{TenantID: req.TenantID, AllTenants: req.AllTenants, Range: req.Range, ByReason: map[string]int{}}
	started := map[string]struct{}{}
	var durationMS int64
	for _, e := range events {
		switch e.Type {
		case audit.EventTypeCallStarted:
			out.StartedCalls++
			started[e.SessionID] = struct{}{}
			var m startedMeta
			if decode(e.Metadata, &m) && m.Generic {
				out.GenericCalls++
			}
		case audit.EventTypeCallEnded:
			var m endedMeta
			if !decode(e.Metadata, &m) {
				continue
			}
			out.EndedCalls++
			delete(started, e.SessionID)
			durationMS += m.DurationMS
			out.ByReason[m.Reason]++
			switch classify(calls.EndReason(m.Reason)) {
			case outcomeCompleted:
				out.CompletedCalls++
			case outcomeCallerHangup:
				out.CallerHangups++
			case outcomeFailed:
				out.FailedCalls++
			case outcomeTimedOut:
				out.TimedOutCalls++
			case outcomeInterrupted:
				out.InterruptedCalls++
			}
		}
	}
	out.InProgressCalls = len(started)
	out.TotalDurationSeconds = durationMS / 1000
	if out.EndedCalls > 0 {
		out.AverageDurationSeconds = durationMS / int64(out.EndedCalls) / 1000
	}
	return out, nil
}

// BookingMetrics relates booking outcomes to the calls that produced them.
func (s *Service) BookingMetrics(ctx context.Context, req CallsSummaryRequest) (BookingMetrics, error) {
	events, err := s.list(ctx, req)
	if err != nil {
		return BookingMetrics{}, err
	}

	out := BookingMetrics{TenantID: req.TenantID, AllTenants: req.AllTenants, Range: req.Range, FailureReasons: map[string]int{}}
	booked := map[string]struct{}{}
	for _, e := range events {
		switch e.Type {
		case audit.EventTypeCallStarted:
			out.Calls++
		case audit.EventTypeBookingCreated:
			out.BookingsCreated++
			booked[e.SessionID] = struct{}{}
		case audit.EventTypeBookingFailed:
			out.BookingsFailed++
			var m bookingMeta
			if decode(e.Metadata, &m) && m.Reason != "" {
				out.FailureReasons[m.Reason]++
			}
		}
	}
	out.CallsWithBooking = len(booked)
	if out.Calls > 0 {
		out.ConversionRate = float64(out.CallsWithBooking) / float64(out.Calls)
	}
	return out, nil
}

func (s *Service) list(ctx context.Context, req CallsSummaryRequest) ([]audit.Event, error) {
	if req.AllTenants && req.TenantID != "" {
		return nil, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return nil, ErrInvalidRequest
	}
	if s == nil || s.repo == nil {
		return nil, errors.New("reporting: repository not configured")
	}
	return s.repo.ListEvents(ctx, req.TenantID, req.AllTenants, req.Range.From, req.Range.To)
}

type outcome int

const (
	outcomeOther outcome = iota
	outcomeCompleted
	outcomeCallerHangup
	outcomeFailed
	outcomeTimedOut
	outcomeInterrupted
)

func classify(r calls.EndReason) outcome {
	switch r {
	case calls.EndReasonCompleted:
		return outcomeCompleted
	case calls.EndReasonCallerClosed:
		return outcomeCallerHangup
	case calls.EndReasonCallerFailed, calls.EndReasonAgentUnavailable,
		calls.EndReasonAgentClosed, calls.EndReasonAgentFailed:
		return outcomeFailed
	case calls.EndReasonIdleTimeout, calls.EndReasonMaxDuration, calls.EndReasonDrainTimeout:
		return outcomeTimedOut
	case calls.EndReasonForced, calls.EndReasonShutdown:
		return outcomeInterrupted
	default:
		return outcomeOther
	}
}

func decode(raw string, v any) bool {
	if raw == "" {
		return false
	}
	return json.Unmarshal([]byte(raw), v) == nil
}
