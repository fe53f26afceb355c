package calls

import "fmt"

// State is the lifecycle position of a call session.
type State int32

const (
	StateConnecting State = iota
	StateNegotiating
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateNegotiating:
		return "NEGOTIATING"
	case StateActive:
		return "ACTIVE"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// EndReason records which exit edge finalized a session.
type EndReason string

const (
	EndReasonCompleted        EndReason = "completed"
	EndReasonCallerClosed     EndReason = "caller_closed"
	EndReasonCallerFailed     EndReason = "caller_failed"
	EndReasonAgentUnavailable EndReason = "agent_unavailable"
	EndReasonAgentClosed      EndReason = "agent_closed"
	EndReasonAgentFailed      EndReason = "agent_failed"
	EndReasonIdleTimeout      EndReason = "idle_timeout"
	EndReasonMaxDuration      EndReason = "max_duration"
	EndReasonDrainTimeout     EndReason = "drain_timeout"
	EndReasonForced           EndReason = "forced"
	EndReasonShutdown         EndReason = "shutdown"
)
