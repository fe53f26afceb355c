package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"clinic-voice-bridge/internal/calls"
	"clinic-voice-bridge/internal/rbac"
	"clinic-voice-bridge/internal/reporting"
	"clinic-voice-bridge/pkg/logger"
	"clinic-voice-bridge/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Registry *calls.Registry
	Reports  *reporting.Service
	DB       *sql.DB
	Redis    *redis.Client
	Now      func() time.Time
}

// --- Health ---

// Health reports dependency reachability and the number of live sessions.
func (h Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true
	if h.DB != nil {
		if err := utils.HealthCheck(ctx, h.DB, time.Second); err != nil {
			logger.FromGin(c).Warn("postgres health check failed", "err", err)
			checks["postgres"] = "down"
			healthy = false
		} else {
			checks["postgres"] = "ok"
		}
		checks["postgres_pool"] = utils.Stats(h.DB)
	}
	if h.Redis != nil {
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			logger.FromGin(c).Warn("redis health check failed", "err", err)
			checks["redis"] = "down"
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	live := 0
	if h.Registry != nil {
		live = h.Registry.Len()
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "checks": checks, "live_sessions": live})
}

// --- Sessions ---

// ListSessions returns live sessions visible to the caller.
// RBAC: operator, viewer (own tenant) or super_admin (all tenants).
func (h Handlers) ListSessions(c *gin.Context) {
	if h.Registry == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "registry not configured"})
		return
	}
	tenantID, all, err := rbac.TenantScope(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	if all {
		tenantID = c.Query("tenant_id")
	}
	c.JSON(http.StatusOK, gin.H{"sessions": h.Registry.List(tenantID)})
}

// CloseSession forces a live session to CLOSED.
// RBAC: operator (own tenant) or super_admin.
func (h Handlers) CloseSession(c *gin.Context) {
	if h.Registry == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "registry not configured"})
		return
	}
	tenantID, all, err := rbac.TenantScope(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}

	id := c.Param("id")
	s, ok := h.Registry.Get(id)
	// Sessions of other tenants are indistinguishable from missing ones.
	if !ok || (!all && s.Tenant().TenantID != tenantID) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err := h.Registry.Close(id); err != nil {
		if errors.Is(err, calls.ErrSessionNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "close failed"})
		return
	}

	logger.FromGin(c).Info("session closed by operator", "session_id", id)
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "closing"})
}

// Convenience middleware bundles.

func RequireTenantAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireTenantScope(), rbac.RequireAnyRole(roles...)}
}
