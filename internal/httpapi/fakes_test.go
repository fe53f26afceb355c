package httpapi

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"clinic-voice-bridge/internal/booking"
	"clinic-voice-bridge/internal/calls"
	"clinic-voice-bridge/internal/tenants"
)

type stubAgent struct {
	events chan calls.Event

	mu      sync.Mutex
	configs []calls.AgentConfig
	commits int
	closed  bool
}

func newStubAgent() *stubAgent { return &stubAgent{events: make(chan calls.Event, 8)} }

func (a *stubAgent) Events() <-chan calls.Event { return a.events }
func (a *stubAgent) SendAudio(string) error     { return nil }
func (a *stubAgent) Err() error                 { return nil }

func (a *stubAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *stubAgent) Configure(cfg calls.AgentConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.configs = append(a.configs, cfg)
	return nil
}

func (a *stubAgent) CommitAndRespond() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commits++
	return nil
}

func (a *stubAgent) SendToolResult(string, booking.Result) error { return nil }

func (a *stubAgent) snapshot() ([]calls.AgentConfig, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]calls.AgentConfig(nil), a.configs...), a.commits
}

type stubDialer struct {
	agent *stubAgent
	dials atomic.Int32
}

func (d *stubDialer) Dial(context.Context) (calls.AgentLeg, error) {
	d.dials.Add(1)
	if d.agent == nil {
		return nil, errors.New("agent unavailable")
	}
	return d.agent, nil
}

type stubController struct {
	mu    sync.Mutex
	ended map[string]string
}

func (c *stubController) EndCall(_ context.Context, callSID, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended == nil {
		c.ended = map[string]string{}
	}
	c.ended[callSID] = message
	return nil
}

func (c *stubController) message(callSID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.ended[callSID]
	return m, ok
}

type noopTools struct{}

func (noopTools) Execute(context.Context, booking.Invocation, tenants.Context) booking.Result {
	return booking.Result{Success: true, AppointmentID: "appt"}
}

// idleCaller is a caller leg that never sends anything.
type idleCaller struct {
	events chan calls.Event
}

func newIdleCaller() *idleCaller { return &idleCaller{events: make(chan calls.Event)} }

func (c *idleCaller) Events() <-chan calls.Event              { return c.events }
func (c *idleCaller) SendAudio(string) error                  { return nil }
func (c *idleCaller) Close() error                            { return nil }
func (c *idleCaller) Err() error                              { return nil }
func (c *idleCaller) Apologize(context.Context, string) error { return nil }
