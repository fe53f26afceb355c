package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clinic-voice-bridge/internal/tenants"
)

const (
	genericBusyMessage = "All of our lines are busy right now. Please call back in a few minutes. Goodbye."
	tenantBusyMessage  = "Thank you for calling %s. All of our lines are busy right now. Please call back in a few minutes. Goodbye."
)

// TenantResolver resolves a routing key; it never fails.
type TenantResolver interface {
	Resolve(ctx context.Context, routingKey string) tenants.Context
}

// StreamTokenIssuer signs the token the media stream presents back.
type StreamTokenIssuer interface {
	IssueStream(now time.Time, callSID, routingKey string) (string, error)
}

// RoutingEngine decides how an inbound call is answered.
//
// Priority:
//  1. Tenant resolution (never fails; degrades to the generic context)
//  2. Live-call capacity (soft check, fails open)
//  3. Stream token
//  4. Stream decision with the tenant greeting
//
// Return routing decision only. The capacity slot itself is taken by the
// media stream endpoint when the stream opens.
type RoutingEngine struct {
	Tenants       TenantResolver
	Limiter       CallLimiter
	Tokens        StreamTokenIssuer
	StreamURL     string
	MaxConcurrent int

	Log *slog.Logger
	Now func() time.Time
}

type RouteInput struct {
	RoutingKey string
	CallSID    string
	From       string
	To         string
}

func NewRoutingEngine(resolver TenantResolver, limiter CallLimiter, tokens StreamTokenIssuer, streamURL string, maxConcurrent int, l *slog.Logger) *RoutingEngine {
	if l == nil {
		l = slog.Default()
	}
	return &RoutingEngine{
		Tenants:       resolver,
		Limiter:       limiter,
		Tokens:        tokens,
		StreamURL:     streamURL,
		MaxConcurrent: maxConcurrent,
		Log:           l,
		Now:           time.Now,
	}
}

func (e *RoutingEngine) Route(ctx context.Context, in RouteInput) (Decision, error) {
	if strings.TrimSpace(in.CallSID) == "" {
		return Decision{}, errors.New("routing: call_sid required")
	}
	if e.Tenants == nil {
		return Decision{}, errors.New("routing: tenant resolver not configured")
	}
	if e.StreamURL == "" {
		return Decision{}, errors.New("routing: stream url not configured")
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	// 1) Tenant resolution
	key := strings.TrimSpace(in.RoutingKey)
	tc := e.Tenants.Resolve(ctx, key)
	d := Decision{TenantID: tc.TenantID, RoutingKey: key}

	// 2) Live-call capacity
	if e.Limiter != nil && e.MaxConcurrent > 0 {
		n, err := e.Limiter.Active(ctx, LimiterKey(tc))
		switch {
		case err != nil:
			e.Log.Warn("call limiter unavailable, admitting call", "call_sid", in.CallSID, "err", err)
		case n >= e.MaxConcurrent:
			d.Action = ActionReject
			d.Message = BusyMessage(tc)
			d.Reason = "at_capacity"
			return d, nil
		}
	}

	// 3) Stream token
	params := map[string]string{}
	if !tc.Generic && key != "" {
		params["tenant"] = key
	}
	if e.Tokens != nil {
		tok, err := e.Tokens.IssueStream(now(), in.CallSID, key)
		if err != nil {
			return Decision{}, fmt.Errorf("routing: issue stream token: %w", err)
		}
		params["token"] = tok
	}

	// 4) Stream decision
	d.Action = ActionStream
	d.Greeting = tc.Greeting
	d.StreamURL = e.StreamURL
	d.Parameters = params
	d.Reason = "stream"
	if tc.Generic {
		d.Reason = "stream_generic"
	}
	return d, nil
}

// BusyMessage is spoken when a tenant is at its live-call cap.
func BusyMessage(tc tenants.Context) string {
	if tc.Generic || tc.DisplayName == "" {
		return genericBusyMessage
	}
	return fmt.Sprintf(tenantBusyMessage, tc.DisplayName)
}
