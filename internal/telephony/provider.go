package telephony

import (
	"context"
	"time"
)

// Provider is the telephony boundary used by the HTTP layer.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Routing decisions come from a Router; providers only translate.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	HandleInboundCall(ctx context.Context, req InboundCallRequest) (InboundCallResult, error)
	CallController
}

// CallController acts on a live call out of band of its media stream.
type CallController interface {
	// EndCall speaks message on the call and hangs up.
	EndCall(ctx context.Context, callSID, message string) error
}

// Router decides what to do with an inbound call.
type Router interface {
	RouteInboundCall(ctx context.Context, req InboundCallRequest) (InboundCallResult, error)
}

// InboundCallRequest represents an inbound call event received from a provider.
type InboundCallRequest struct {
	// RoutingKey identifies the tenant: an explicit key or the dialed number.
	RoutingKey string `json:"routing_key"`

	CallSID string `json:"call_sid"`

	// From and To are E.164 where possible.
	From string `json:"from"`
	To   string `json:"to"`

	OccurredAt time.Time `json:"occurred_at"`
}

// InboundCallResult is the provider boundary action for an inbound call.
type InboundCallResult struct {
	TenantID   string            `json:"tenant_id,omitempty"`
	RoutingKey string            `json:"routing_key,omitempty"`
	Action     InboundCallAction `json:"action"`

	// Greeting is spoken before the media stream opens.
	Greeting string `json:"greeting,omitempty"`
	// Message is spoken before a reject hangs up.
	Message string `json:"message,omitempty"`

	// StreamURL and Parameters are used when Action == "stream".
	StreamURL  string            `json:"stream_url,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`

	// Reason is for logs only.
	Reason string `json:"reason,omitempty"`
}

type InboundCallAction string

const (
	InboundCallActionStream InboundCallAction = "stream"
	InboundCallActionReject InboundCallAction = "reject"
	InboundCallActionHangup InboundCallAction = "hangup"
)
