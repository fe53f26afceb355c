package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess TokenType = "access"
	TokenTypeStream TokenType = "stream"
)

// Claims are the only supported JWT claims shape for this service.
//
// Access tokens identify an operator (UserID, Role, optional TenantID).
// Stream tokens bind one media stream to the call the webhook routed
// (CallSID, RoutingKey) and carry no role.
type Claims struct {
	jwt.RegisteredClaims

	UserID     string    `json:"user_id,omitempty"`
	TenantID   string    `json:"tenant_id,omitempty"`
	Role       string    `json:"role,omitempty"`
	CallSID    string    `json:"call_sid,omitempty"`
	RoutingKey string    `json:"routing_key,omitempty"`
	TokenType  TokenType `json:"token_type"`
}
