package calls

import (
	"context"
	"errors"

	"clinic-voice-bridge/internal/booking"
	"clinic-voice-bridge/internal/tenants"
)

// Event is the closed set of things a leg can report to its session.
// Adapters decode wire frames into these once; sessions never see raw JSON.
type Event interface {
	isEvent()
}

// CallStarted is the telephony start frame.
type CallStarted struct {
	CallSID   string
	StreamSID string
	Params    map[string]string
}

// AudioChunk carries one opaque base64 audio frame. It is never decoded.
type AudioChunk struct {
	Payload string
}

// CallStopped is the telephony end-of-call frame.
type CallStopped struct{}

// ToolCall is a completed function call from the agent.
type ToolCall struct {
	Invocation booking.Invocation
}

// ResponseDone marks the end of one agent response.
type ResponseDone struct{}

func (CallStarted) isEvent()  {}
func (AudioChunk) isEvent()   {}
func (CallStopped) isEvent()  {}
func (ToolCall) isEvent()     {}
func (ResponseDone) isEvent() {}

// Leg is one duplex connection owned by exactly one session.
//
// Events is closed when the leg stops reading. Err reports why: nil for an
// orderly close, non-nil for a transport failure or send timeout.
type Leg interface {
	Events() <-chan Event
	SendAudio(payload string) error
	Close() error
	Err() error
}

// CallerLeg is the telephony side of a call.
type CallerLeg interface {
	Leg
	// Apologize speaks message to the caller and ends the call. It is used
	// when no agent leg could be opened and needs no tenant context.
	Apologize(ctx context.Context, message string) error
}

// AgentConfig is declared to the agent once, right after the leg opens.
type AgentConfig struct {
	Instructions string
	Voice        string
}

// AgentLeg is the conversational AI side of a call.
type AgentLeg interface {
	Leg
	Configure(cfg AgentConfig) error
	CommitAndRespond() error
	SendToolResult(callID string, res booking.Result) error
}

// AgentDialer opens agent legs.
type AgentDialer interface {
	Dial(ctx context.Context) (AgentLeg, error)
}

// ToolExecutor runs tool invocations. It must not return until the
// invocation is fully resolved and must never panic into the session.
type ToolExecutor interface {
	Execute(ctx context.Context, inv booking.Invocation, tc tenants.Context) booking.Result
}

var (
	ErrLegClosed        = errors.New("calls: leg closed")
	ErrIdleTimeout      = errors.New("calls: idle timeout")
	ErrAgentUnavailable = errors.New("calls: agent leg unavailable")
)
