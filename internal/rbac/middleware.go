package rbac

import (
	"context"
	"errors"
	"net/http"

	"clinic-voice-bridge/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireTenantScope enforces the multi-tenant invariant: every role except
// super_admin must carry a tenant_id.
func RequireTenantScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := TenantScope(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
			return
		}
		c.Next()
	}
}

// TenantScope reports which tenant the caller may see. all is true for
// super_admin, who is not bound to a tenant.
func TenantScope(ctx context.Context) (tenantID string, all bool, err error) {
	role, err := auth.Role(ctx)
	if err != nil {
		return "", false, err
	}
	if IsSuperAdmin(role) {
		return "", true, nil
	}
	tid, err := auth.TenantID(ctx)
	if err != nil {
		return "", false, errors.New("rbac: tenant-scoped role without tenant_id")
	}
	return tid, false, nil
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// super_admin bypasses all checks.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}

		if IsSuperAdmin(role) {
			c.Next()
			return
		}

		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
