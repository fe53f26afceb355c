package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"clinic-voice-bridge/internal/audit"
	"clinic-voice-bridge/internal/auth"
	"clinic-voice-bridge/internal/calls"
	"clinic-voice-bridge/internal/routing"
	"clinic-voice-bridge/internal/telephony"
	"clinic-voice-bridge/pkg/logger"
	"clinic-voice-bridge/pkg/wsconn"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// MediaStreamHandler accepts Twilio media streams and runs one call session
// per stream on the handler goroutine.
type MediaStreamHandler struct {
	Upgrader websocket.Upgrader

	// Tokens verifies the stream token issued by the webhook. Nil disables
	// verification.
	Tokens *auth.Manager

	Tenants    routing.TenantResolver
	Limiter    routing.CallLimiter
	Controller telephony.CallController
	Dialer     calls.AgentDialer
	Tools      calls.ToolExecutor
	Audit      *audit.Service
	Registry   *calls.Registry

	Socket  wsconn.Config
	Session calls.Config

	// StartTimeout bounds the wait for Twilio's start frame.
	StartTimeout time.Duration
	// BaseContext parents every session; canceling it ends them with reason
	// shutdown. Defaults to a context detached from the request.
	BaseContext context.Context

	Now func() time.Time
}

func (h *MediaStreamHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Tenants == nil || h.Dialer == nil || h.Tools == nil || h.Registry == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "media stream not configured"})
		return
	}

	ws, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Warn("media stream upgrade failed", "err", err)
		return
	}
	log.Debug("media stream upgraded")
	leg := telephony.NewMediaStreamLeg(wsconn.New(ws, h.Socket), h.Controller, log)

	base := h.BaseContext
	if base == nil {
		base = context.WithoutCancel(c.Request.Context())
	}

	startCtx, cancel := context.WithTimeout(base, h.startTimeout())
	start, err := leg.AwaitStart(startCtx)
	cancel()
	if err != nil {
		log.Warn("media stream ended before start", "err", err)
		_ = leg.Close()
		return
	}
	log = log.With("call_sid", start.CallSID, "stream_sid", start.StreamSID)

	routingKey, ok := h.authorize(log, c, start)
	if !ok {
		_ = leg.Close()
		return
	}

	tc := h.Tenants.Resolve(base, routingKey)

	slotKey := routing.LimiterKey(tc)
	holdsSlot := false
	if h.Limiter != nil {
		acquired, err := h.Limiter.Acquire(base, slotKey)
		switch {
		case err != nil:
			log.Warn("call limiter unavailable, admitting call", "err", err)
		case !acquired:
			log.Info("tenant at live-call cap, ending call", "tenant_id", tc.TenantID)
			if err := leg.Apologize(base, routing.BusyMessage(tc)); err != nil {
				log.Warn("busy apology failed", "err", err)
			}
			_ = leg.Close()
			return
		default:
			holdsSlot = true
		}
	}
	release := func() {
		if !holdsSlot {
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(base), 2*time.Second)
		defer cancel()
		if err := h.Limiter.Release(ctx, slotKey); err != nil {
			log.Warn("call slot release failed", "err", err)
		}
	}

	sess, err := calls.NewSession(calls.Params{
		CallSID: start.CallSID,
		Tenant:  tc,
		Caller:  leg,
		Dialer:  h.Dialer,
		Tools:   h.Tools,
		Audit:   h.Audit,
		Log:     logger.FromGin(c).With("stream_sid", start.StreamSID),
		Config:  h.Session,
		Now:     h.Now,
	})
	if err != nil {
		log.Error("session init failed", "err", err)
		release()
		_ = leg.Close()
		return
	}
	sess.OnFinish(func(calls.Summary) { release() })

	if err := h.Registry.Register(sess); err != nil {
		log.Error("session register failed", "session_id", sess.ID(), "err", err)
		sess.Shutdown()
	}

	_ = sess.Run(base)
}

// authorize checks the stream token and returns the routing key it was
// issued for. Without a token manager the unsigned tenant parameter is used.
func (h *MediaStreamHandler) authorize(log *slog.Logger, c *gin.Context, start calls.CallStarted) (string, bool) {
	routingKey := firstNonEmpty(start.Params["tenant"], c.Query("tenant"))
	if h.Tokens == nil {
		return routingKey, true
	}

	token := firstNonEmpty(start.Params["token"], c.Query("token"))
	if token == "" {
		log.Warn("media stream rejected: missing stream token")
		return "", false
	}
	claims, err := h.Tokens.Verify(token, auth.TokenTypeStream, h.now())
	if err != nil {
		log.Warn("media stream rejected: invalid stream token", "err", err)
		return "", false
	}
	if start.CallSID != "" && claims.CallSID != start.CallSID {
		log.Warn("media stream rejected: token issued for another call", "token_call_sid", claims.CallSID)
		return "", false
	}
	return claims.RoutingKey, true
}

func (h *MediaStreamHandler) startTimeout() time.Duration {
	if h.StartTimeout > 0 {
		return h.StartTimeout
	}
	return 10 * time.Second
}

func (h *MediaStreamHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
