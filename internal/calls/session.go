package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"clinic-voice-bridge/internal/audit"
	"clinic-voice-bridge/internal/booking"
	"clinic-voice-bridge/internal/tenants"
	"clinic-voice-bridge/internal/trace"
	"clinic-voice-bridge/pkg/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultApology = "We're sorry, our virtual assistant is unavailable right now. Please call back later. Goodbye."

// Config tunes session timers. Zero IdleTimeout or MaxCallDuration disables
// that timer; a zero DrainTimeout waits for the agent indefinitely.
type Config struct {
	IdleTimeout     time.Duration
	MaxCallDuration time.Duration
	DrainTimeout    time.Duration
	ApologyMessage  string
}

type Params struct {
	ID      string
	CallSID string
	Tenant  tenants.Context

	Caller CallerLeg
	Dialer AgentDialer
	Tools  ToolExecutor

	Audit  *audit.Service
	Log    *slog.Logger
	Config Config
	Now    func() time.Time
}

// Summary is handed to finalizers once a session is CLOSED.
type Summary struct {
	ID       string
	TenantID string
	CallSID  string
	Reason   EndReason
	Err      error
	Duration time.Duration
}

// Snapshot is a read-only view of a live session.
type Snapshot struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id,omitempty"`
	TenantName   string    `json:"tenant_name,omitempty"`
	Generic      bool      `json:"generic"`
	CallSID      string    `json:"call_sid,omitempty"`
	StreamSID    string    `json:"stream_sid,omitempty"`
	State        State     `json:"state"`
	StartedAt    time.Time `json:"started_at"`
	PendingTools int       `json:"pending_tools"`
}

type toolOutcome struct {
	callID string
	result booking.Result
}

// Session bridges one caller leg and one agent leg.
//
// All leg traffic is handled by the single goroutine running Run, in arrival
// order per leg. Tool invocations run on their own goroutines and report back
// through a channel, so audio relay never waits on the scheduling store.
type Session struct {
	id        string
	tenant    tenants.Context
	caller    CallerLeg
	dialer    AgentDialer
	tools     ToolExecutor
	auditSvc  *audit.Service
	cfg       Config
	now       func() time.Time
	startedAt time.Time

	log   *slog.Logger
	state atomic.Int32

	mu         sync.Mutex
	callSID    string
	streamSID  string
	cancel     context.CancelFunc
	forced     bool
	finished   bool
	summary    Summary
	finalizers []func(Summary)

	// owned by the Run goroutine
	agent      AgentLeg
	pending    map[string]booking.Invocation
	completed  map[string]booking.Result
	callerGone bool
	// response.create requests sent without a matching response.done yet
	awaiting int

	pendingCount atomic.Int32
	results      chan toolOutcome
	done         chan struct{}
	finishOnce   sync.Once
}

func NewSession(p Params) (*Session, error) {
	if p.Caller == nil {
		return nil, errors.New("calls: caller leg is required")
	}
	if p.Dialer == nil {
		return nil, errors.New("calls: agent dialer is required")
	}
	if p.Tools == nil {
		return nil, errors.New("calls: tool executor is required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Config.ApologyMessage == "" {
		p.Config.ApologyMessage = apologyFor(p.Tenant)
	}

	s := &Session{
		id:        p.ID,
		tenant:    p.Tenant,
		caller:    p.Caller,
		dialer:    p.Dialer,
		tools:     p.Tools,
		auditSvc:  p.Audit,
		cfg:       p.Config,
		now:       p.Now,
		startedAt: p.Now(),
		callSID:   p.CallSID,
		pending:   make(map[string]booking.Invocation),
		completed: make(map[string]booking.Result),
		results:   make(chan toolOutcome, 4),
		done:      make(chan struct{}),
	}
	s.log = logger.ForCall(p.Log, s.id, p.Tenant.TenantID, p.CallSID)
	s.state.Store(int32(StateConnecting))
	return s, nil
}

func apologyFor(tc tenants.Context) string {
	if tc.Generic || tc.CallbackNumber == "" {
		return defaultApology
	}
	return fmt.Sprintf("We're sorry, our virtual assistant is unavailable right now. Please call us back at %s. Goodbye.", tc.CallbackNumber)
}

func (s *Session) ID() string              { return s.id }
func (s *Session) Tenant() tenants.Context { return s.tenant }
func (s *Session) State() State            { return State(s.state.Load()) }
func (s *Session) Done() <-chan struct{}   { return s.done }

func (s *Session) CallSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callSID
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	callSID, streamSID := s.callSID, s.streamSID
	s.mu.Unlock()
	return Snapshot{
		ID:           s.id,
		TenantID:     s.tenant.TenantID,
		TenantName:   s.tenant.DisplayName,
		Generic:      s.tenant.Generic,
		CallSID:      callSID,
		StreamSID:    streamSID,
		State:        s.State(),
		StartedAt:    s.startedAt,
		PendingTools: int(s.pendingCount.Load()),
	}
}

// OnFinish registers f to run once the session is CLOSED.
// If the session is already closed, f runs immediately.
func (s *Session) OnFinish(f func(Summary)) {
	s.mu.Lock()
	if s.finished {
		sum := s.summary
		s.mu.Unlock()
		f(sum)
		return
	}
	s.finalizers = append(s.finalizers, f)
	s.mu.Unlock()
}

// Shutdown forces the session to CLOSED. Safe to call at any time,
// including before Run.
func (s *Session) Shutdown() {
	s.mu.Lock()
	s.forced = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run drives the session until CLOSED. It returns nil for orderly endings
// and the underlying cause for failures.
func (s *Session) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	forced := s.forced
	s.mu.Unlock()
	if forced {
		cancel()
	}

	ctx, span := trace.StartSpan(ctx, "call.session")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", s.id),
		attribute.String("tenant.id", s.tenant.TenantID),
		attribute.Bool("tenant.generic", s.tenant.Generic),
	)
	ctx = logger.With(ctx, s.log)

	if s.auditSvc != nil {
		if err := s.auditSvc.CallStarted(ctx, s.scope(), s.tenant.Generic); err != nil {
			s.log.Warn("audit append failed", "err", err)
		}
	}

	err := s.run(ctx)

	s.mu.Lock()
	reason := s.summary.Reason
	s.mu.Unlock()
	span.SetAttributes(attribute.String("session.end_reason", string(reason)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(reason))
	}
	return err
}

func (s *Session) run(ctx context.Context) error {
	s.log.Info("call session connecting")

	agent, err := s.dialer.Dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return s.finish(s.cancelReason(), nil)
		}
		s.log.Error("agent leg open failed", "err", err)
		if aerr := s.caller.Apologize(ctx, s.cfg.ApologyMessage); aerr != nil {
			s.log.Warn("caller apology failed", "err", aerr)
		}
		return s.finish(EndReasonAgentUnavailable, fmt.Errorf("%w: %v", ErrAgentUnavailable, err))
	}
	s.agent = agent

	if err := agent.Configure(AgentConfig{
		Instructions: s.tenant.Instructions,
		Voice:        s.tenant.VoiceProfile,
	}); err != nil {
		s.log.Error("agent configuration failed", "err", err)
		return s.finish(EndReasonAgentFailed, err)
	}
	s.setState(StateNegotiating)
	s.log.Debug("agent configured")

	return s.loop(ctx)
}

func (s *Session) loop(ctx context.Context) error {
	callerEvents := s.caller.Events()
	agentEvents := s.agent.Events()

	var idleC <-chan time.Time
	var idle *time.Timer
	if s.cfg.IdleTimeout > 0 {
		idle = time.NewTimer(s.cfg.IdleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}
	var maxC <-chan time.Time
	if s.cfg.MaxCallDuration > 0 {
		t := time.NewTimer(s.cfg.MaxCallDuration)
		defer t.Stop()
		maxC = t.C
	}
	var drainC <-chan time.Time
	var drain *time.Timer
	defer func() {
		if drain != nil {
			drain.Stop()
		}
	}()
	touch := func() {
		if idle != nil {
			idle.Reset(s.cfg.IdleTimeout)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return s.finish(s.cancelReason(), nil)

		case <-idleC:
			s.log.Warn("call session idle, closing", "idle_timeout", s.cfg.IdleTimeout.String())
			return s.finish(EndReasonIdleTimeout, ErrIdleTimeout)

		case <-maxC:
			s.log.Info("maximum call duration reached", "max_call_duration", s.cfg.MaxCallDuration.String())
			return s.finish(EndReasonMaxDuration, nil)

		case <-drainC:
			s.log.Warn("agent did not finish within drain timeout")
			return s.finish(EndReasonDrainTimeout, nil)

		case ev, ok := <-callerEvents:
			if !ok {
				callerEvents = nil
				s.callerGone = true
				if err := s.caller.Err(); err != nil {
					s.log.Warn("caller leg failed", "err", err)
					return s.finish(EndReasonCallerFailed, err)
				}
				if s.State() == StateClosing {
					s.log.Debug("caller leg closed while draining")
					continue
				}
				s.log.Info("caller leg closed")
				return s.finish(EndReasonCallerClosed, nil)
			}
			touch()
			s.activate()
			stopped, err := s.handleCaller(ev)
			if err != nil {
				return s.finish(EndReasonAgentFailed, err)
			}
			if stopped && s.cfg.DrainTimeout > 0 {
				drain = time.NewTimer(s.cfg.DrainTimeout)
				drainC = drain.C
			}

		case ev, ok := <-agentEvents:
			if !ok {
				agentEvents = nil
				if err := s.agent.Err(); err != nil {
					s.log.Warn("agent leg failed", "err", err)
					return s.finish(EndReasonAgentFailed, err)
				}
				if s.State() == StateClosing {
					return s.finish(EndReasonCompleted, nil)
				}
				s.log.Info("agent leg closed")
				return s.finish(EndReasonAgentClosed, nil)
			}
			touch()
			s.activate()
			finished, err := s.handleAgent(ctx, ev)
			if err != nil {
				return s.finish(EndReasonCallerFailed, err)
			}
			if finished {
				return s.finish(EndReasonCompleted, nil)
			}

		case out := <-s.results:
			if err := s.deliverToolResult(out); err != nil {
				return s.finish(EndReasonAgentFailed, err)
			}
		}
	}
}

// handleCaller reports stopped=true on the transition to CLOSING.
// A returned error is an agent-side send failure.
func (s *Session) handleCaller(ev Event) (stopped bool, err error) {
	switch e := ev.(type) {
	case CallStarted:
		s.mu.Lock()
		if e.CallSID != "" {
			s.callSID = e.CallSID
		}
		s.streamSID = e.StreamSID
		s.mu.Unlock()
		s.log.Info("media stream started", "call_sid", e.CallSID, "stream_sid", e.StreamSID)
		return false, s.requestResponse()

	case AudioChunk:
		if s.State() == StateClosing {
			return false, nil
		}
		return false, s.agent.SendAudio(e.Payload)

	case CallStopped:
		if s.State() == StateClosing {
			return false, nil
		}
		s.log.Info("caller ended the call, draining agent", "awaiting_responses", s.awaiting)
		if err := s.requestResponse(); err != nil {
			return false, err
		}
		s.setState(StateClosing)
		return true, nil

	default:
		s.log.Debug("ignoring caller event", "event", fmt.Sprintf("%T", ev))
		return false, nil
	}
}

// requestResponse commits caller audio and asks the agent for a response.
func (s *Session) requestResponse() error {
	if err := s.agent.CommitAndRespond(); err != nil {
		return err
	}
	s.awaiting++
	return nil
}

// handleAgent reports finished=true when the final response has drained.
// A returned error is a caller-side send failure.
func (s *Session) handleAgent(ctx context.Context, ev Event) (finished bool, err error) {
	switch e := ev.(type) {
	case AudioChunk:
		if s.callerGone {
			return false, nil
		}
		return false, s.caller.SendAudio(e.Payload)

	case ToolCall:
		s.dispatchTool(ctx, e.Invocation)
		return false, nil

	case ResponseDone:
		// responses the provider starts on its own do not count
		if s.awaiting > 0 {
			s.awaiting--
		}
		if s.State() != StateClosing {
			return false, nil
		}
		if s.awaiting > 0 || len(s.pending) > 0 {
			s.log.Debug("response finished while draining", "awaiting_responses", s.awaiting, "pending_tools", len(s.pending))
			return false, nil
		}
		return true, nil

	default:
		s.log.Debug("ignoring agent event", "event", fmt.Sprintf("%T", ev))
		return false, nil
	}
}

func (s *Session) dispatchTool(ctx context.Context, inv booking.Invocation) {
	log := s.log.With("tool_call_id", inv.CallID, "tool", inv.ToolName)
	if inv.CallID == "" {
		log.Warn("dropping tool call without call id")
		return
	}
	if res, ok := s.completed[inv.CallID]; ok {
		log.Info("replaying cached tool result for retransmitted call")
		if err := s.agent.SendToolResult(inv.CallID, res); err != nil {
			log.Warn("replaying tool result failed", "err", err)
			return
		}
		s.awaiting++
		return
	}
	if _, ok := s.pending[inv.CallID]; ok {
		log.Info("tool call already in flight, ignoring retransmission")
		return
	}

	s.pending[inv.CallID] = inv
	s.pendingCount.Store(int32(len(s.pending)))
	log.Info("dispatching tool call")

	tctx := audit.WithScope(logger.With(ctx, log), s.scope())
	go s.runTool(tctx, inv)
}

func (s *Session) runTool(ctx context.Context, inv booking.Invocation) {
	var res booking.Result
	func() {
		defer func() {
			if p := recover(); p != nil {
				logger.From(ctx).Error("tool executor panicked", "panic", fmt.Sprint(p))
				res = booking.Failed(booking.ReasonPersistence)
			}
		}()
		res = s.tools.Execute(ctx, inv, s.tenant)
	}()

	select {
	case s.results <- toolOutcome{callID: inv.CallID, result: res}:
	case <-s.done:
		logger.From(ctx).Debug("dropping tool result for closed session", "success", res.Success)
	}
}

func (s *Session) deliverToolResult(out toolOutcome) error {
	delete(s.pending, out.callID)
	s.pendingCount.Store(int32(len(s.pending)))
	s.completed[out.callID] = out.result

	s.log.Info("tool call finished",
		"tool_call_id", out.callID,
		"success", out.result.Success,
		"error_reason", out.result.ErrorReason,
	)
	if err := s.agent.SendToolResult(out.callID, out.result); err != nil {
		return err
	}
	s.awaiting++
	return nil
}

func (s *Session) activate() {
	s.state.CompareAndSwap(int32(StateNegotiating), int32(StateActive))
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Session) cancelReason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forced {
		return EndReasonForced
	}
	return EndReasonShutdown
}

func (s *Session) scope() audit.Scope {
	return audit.Scope{TenantID: s.tenant.TenantID, SessionID: s.id, CallSID: s.CallSID()}
}

// finish is the only path to CLOSED. Every exit edge of Run ends here: it
// closes both legs, then runs finalizers (registry removal, slot release,
// audit) exactly once.
func (s *Session) finish(reason EndReason, cause error) error {
	s.finishOnce.Do(func() {
		s.setState(StateClosed)
		close(s.done)

		if s.agent != nil {
			if err := s.agent.Close(); err != nil {
				s.log.Debug("agent leg close", "err", err)
			}
		}
		if err := s.caller.Close(); err != nil {
			s.log.Debug("caller leg close", "err", err)
		}

		sum := Summary{
			ID:       s.id,
			TenantID: s.tenant.TenantID,
			CallSID:  s.CallSID(),
			Reason:   reason,
			Err:      cause,
			Duration: s.now().Sub(s.startedAt),
		}
		s.mu.Lock()
		s.finished = true
		s.summary = sum
		fs := s.finalizers
		s.finalizers = nil
		s.mu.Unlock()

		if s.auditSvc != nil {
			actx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := s.auditSvc.CallEnded(actx, s.scope(), string(reason), sum.Duration); err != nil {
				s.log.Warn("audit append failed", "err", err)
			}
			cancel()
		}

		attrs := []any{"reason", string(reason), "duration_ms", sum.Duration.Milliseconds()}
		if cause != nil {
			attrs = append(attrs, "err", cause)
		}
		s.log.Info("call session closed", attrs...)

		for _, f := range fs {
			f(sum)
		}
	})
	return cause
}
