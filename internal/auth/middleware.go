package auth

import (
	"net/http"
	"strings"
	"time"

	"clinic-voice-bridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"

// RequireAccessToken admits ops API requests carrying a valid access token.
// Stream tokens minted for Twilio are refused here even though they share
// the signing key. The operator's identity goes on the request context and
// on the request logger, so every ops action is logged with who did it.
// RBAC checks belong to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearerToken(c.GetHeader(authorizationHeader))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			logger.FromGin(c).Warn("access token rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), claims.UserID, claims.TenantID, claims.Role))
		l := logger.FromGin(c).With("user_id", claims.UserID, "role", claims.Role)
		if claims.TenantID != "" {
			l = l.With("tenant_id", claims.TenantID)
		}
		logger.SetGin(c, l)

		c.Next()
	}
}

// bearerToken extracts the credentials of a Bearer authorization header.
// The scheme name is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
