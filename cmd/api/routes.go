package main

import (
	"clinic-voice-bridge/internal/auth"
	"clinic-voice-bridge/internal/httpapi"
	"clinic-voice-bridge/internal/rbac"
	"clinic-voice-bridge/internal/telephony"

	"github.com/gin-gonic/gin"
)

type dependencies struct {
	auth     *auth.Manager
	provider telephony.Provider
	media    *httpapi.MediaStreamHandler
	ops      httpapi.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d dependencies) {
	// public
	r.GET("/healthz", d.ops.Health)

	// Provider webhooks (public).
	// NOTE: This endpoint should be protected by Twilio signature validation in production.
	{
		h := telephony.TwilioWebhookHandler{Provider: d.provider}
		r.POST("/webhooks/twilio/voice", h.HandleInboundCall)
	}

	// Media streams authenticate with the stream token minted by the webhook.
	r.GET("/media-stream", d.media.Handle)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.auth))
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			tid, _ := auth.TenantID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "tenant_id": tid, "role": role})
		})

		// SESSIONS routes
		sessions := v1.Group("/sessions")
		sessions.Use(httpapi.RequireTenantAndAnyRole(rbac.RoleOperator, rbac.RoleViewer)...)
		{
			sessions.GET("", d.ops.ListSessions)
			sessions.DELETE("/:id", rbac.RequireAnyRole(rbac.RoleOperator), d.ops.CloseSession)
		}

		// REPORTS routes
		reports := v1.Group("/reports")
		reports.Use(httpapi.RequireTenantAndAnyRole(rbac.RoleOperator, rbac.RoleViewer)...)
		{
			reports.GET("/calls", d.ops.CallsReport)
			reports.GET("/bookings", d.ops.BookingsReport)
		}
	}
}
