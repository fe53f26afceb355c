package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"clinic-voice-bridge/internal/audit"
	"clinic-voice-bridge/internal/tenants"
	"clinic-voice-bridge/internal/trace"
	"clinic-voice-bridge/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Executor validates tool invocations and writes appointments.
//
// Execute never returns an error: every failure becomes a Result so the
// AI leg can tell the caller what happened. It does not de-duplicate;
// retransmitted call ids are filtered by the call session.
type Executor struct {
	Store AppointmentStore
	Audit *audit.Service
	Now   func() time.Time
}

func NewExecutor(store AppointmentStore, auditSvc *audit.Service) *Executor {
	return &Executor{Store: store, Audit: auditSvc, Now: time.Now}
}

func (e *Executor) Execute(ctx context.Context, inv Invocation, tc tenants.Context) Result {
	ctx, span := trace.StartSpan(ctx, "booking.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.call_id", inv.CallID),
		attribute.String("tool.name", inv.ToolName),
		attribute.String("tenant.id", tc.TenantID),
	)

	log := logger.From(ctx).With("tool_call_id", inv.CallID)
	res := e.execute(ctx, log, inv, tc)

	span.SetAttributes(attribute.Bool("booking.success", res.Success))
	if !res.Success {
		span.SetAttributes(attribute.String("booking.error_reason", res.ErrorReason))
		if res.ErrorReason == ReasonPersistence {
			span.SetStatus(codes.Error, res.ErrorReason)
		}
	}
	e.audit(ctx, log, inv, res)
	return res
}

func (e *Executor) execute(ctx context.Context, log *slog.Logger, inv Invocation, tc tenants.Context) Result {
	if inv.ToolName != ToolName {
		log.Warn("unsupported tool requested", "tool", inv.ToolName)
		return Failed(ReasonUnsupportedTool)
	}

	args, start, err := ParseArguments(inv.Arguments)
	if err != nil {
		log.Warn("booking arguments rejected", "err", err)
		return Failed(ReasonValidation)
	}

	if tc.Generic || tc.TenantID == "" {
		log.Warn("booking requested without a resolved tenant")
		return Failed(ReasonNoTenant)
	}
	if e.Store == nil {
		log.Error("booking store not configured")
		return Failed(ReasonPersistence)
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	id, err := e.Store.CreateAppointment(ctx, Appointment{
		TenantID:        tc.TenantID,
		PatientName:     args.PatientName,
		PatientPhone:    args.PatientPhone,
		PatientEmail:    args.PatientEmail,
		StartTime:       start,
		AppointmentType: args.AppointmentType,
		Notes:           args.Notes,
		SourceCallSID:   audit.ScopeFrom(ctx).CallSID,
		CreatedAt:       now().UTC(),
	})
	if err != nil {
		log.Error("appointment persistence failed", "err", err, "cancelled", errors.Is(err, context.Canceled))
		return Failed(ReasonPersistence)
	}

	log.Info("appointment created", "appointment_id", id, "start_time", start.Format(time.RFC3339))
	return Result{Success: true, AppointmentID: id}
}

func (e *Executor) audit(ctx context.Context, log *slog.Logger, inv Invocation, res Result) {
	if e.Audit == nil {
		return
	}
	sc := audit.ScopeFrom(ctx)
	if sc.SessionID == "" {
		return
	}
	var err error
	if res.Success {
		err = e.Audit.BookingCreated(ctx, sc, inv.CallID, res.AppointmentID)
	} else {
		err = e.Audit.BookingFailed(ctx, sc, inv.CallID, res.ErrorReason)
	}
	if err != nil {
		log.Warn("audit append failed", "err", err)
	}
}
