package calls

import (
	"context"
	"errors"
	"sync"

	"clinic-voice-bridge/internal/booking"
	"clinic-voice-bridge/internal/tenants"
)

type fakeLeg struct {
	events chan Event

	mu      sync.Mutex
	audio   []string
	closed  int
	err     error
	sendErr error
	gone    sync.Once
}

func (l *fakeLeg) Events() <-chan Event { return l.events }

func (l *fakeLeg) SendAudio(payload string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed > 0 {
		return ErrLegClosed
	}
	if l.sendErr != nil {
		return l.sendErr
	}
	l.audio = append(l.audio, payload)
	return nil
}

func (l *fakeLeg) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed++
	return nil
}

func (l *fakeLeg) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *fakeLeg) emit(ev Event) { l.events <- ev }

// hangup simulates the remote side going away.
func (l *fakeLeg) hangup(err error) {
	l.gone.Do(func() {
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		close(l.events)
	})
}

func (l *fakeLeg) sentAudio() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.audio...)
}

func (l *fakeLeg) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed > 0
}

type fakeCaller struct {
	fakeLeg
	apologies []string
}

func newFakeCaller() *fakeCaller {
	c := &fakeCaller{}
	c.events = make(chan Event, 64)
	return c
}

func (c *fakeCaller) Apologize(ctx context.Context, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apologies = append(c.apologies, message)
	return nil
}

func (c *fakeCaller) apologyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.apologies)
}

type toolReply struct {
	callID string
	result booking.Result
}

type fakeAgent struct {
	fakeLeg
	configs []AgentConfig
	commits int
	replies []toolReply
}

func newFakeAgent() *fakeAgent {
	a := &fakeAgent{}
	a.events = make(chan Event, 64)
	return a
}

func (a *fakeAgent) Configure(cfg AgentConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.configs = append(a.configs, cfg)
	return nil
}

func (a *fakeAgent) CommitAndRespond() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed > 0 {
		return ErrLegClosed
	}
	a.commits++
	return nil
}

func (a *fakeAgent) SendToolResult(callID string, res booking.Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed > 0 {
		return ErrLegClosed
	}
	a.replies = append(a.replies, toolReply{callID: callID, result: res})
	return nil
}

func (a *fakeAgent) commitCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.commits
}

func (a *fakeAgent) toolReplies() []toolReply {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]toolReply(nil), a.replies...)
}

func (a *fakeAgent) configured() []AgentConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AgentConfig(nil), a.configs...)
}

type fakeDialer struct {
	agent *fakeAgent
	err   error

	mu    sync.Mutex
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context) (AgentLeg, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.agent, nil
}

// fakeTools counts executions per call id and optionally blocks until released.
type fakeTools struct {
	mu      sync.Mutex
	calls   map[string]int
	release chan struct{}
	result  booking.Result
	panics  bool
}

func newFakeTools() *fakeTools {
	return &fakeTools{calls: map[string]int{}, result: booking.Result{Success: true, AppointmentID: "appt-1"}}
}

func (f *fakeTools) Execute(ctx context.Context, inv booking.Invocation, tc tenants.Context) booking.Result {
	f.mu.Lock()
	f.calls[inv.CallID]++
	release, res, panics := f.release, f.result, f.panics
	f.mu.Unlock()
	if panics {
		panic("boom")
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
		}
	}
	return res
}

func (f *fakeTools) count(callID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[callID]
}

var errBoom = errors.New("boom")

func tenantlessContext() tenants.Context {
	return tenants.Context{Generic: true, Instructions: tenants.GenericInstructions, Greeting: tenants.GenericGreeting}
}
