package routing

// Decision is the provider-agnostic output of the routing engine.
//
// It must contain *only* information required for the provider adapter boundary
// (e.g., the TwiML renderer) to execute the decision.
//
// No provider identity and no provider-specific fields belong here.
type Decision struct {
	TenantID   string `json:"tenant_id,omitempty"`
	RoutingKey string `json:"routing_key,omitempty"`

	Action Action `json:"action"`

	Greeting   string            `json:"greeting,omitempty"`
	Message    string            `json:"message,omitempty"`
	StreamURL  string            `json:"stream_url,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`

	// Reason is optional and intended for internal logs/metrics.
	Reason string `json:"reason,omitempty"`
}

type Action string

const (
	ActionStream Action = "stream"
	ActionReject Action = "reject"
	ActionHangup Action = "hangup"
)
