package auth

import (
	"context"
	"errors"
)

// Identity is the operator behind an ops API request. TenantID is empty for
// super_admin, who is not bound to a tenant.
type Identity struct {
	UserID   string
	TenantID string
	Role     string
}

type identityKey struct{}

var ErrNoIdentity = errors.New("auth: no identity in context")

func WithIdentity(ctx context.Context, userID, tenantID, role string) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{UserID: userID, TenantID: tenantID, Role: role})
}

// IdentityFrom returns the identity RequireAccessToken attached.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func UserID(ctx context.Context) (string, error) {
	return field(ctx, "user_id", func(id Identity) string { return id.UserID })
}

// TenantID errors for tenant-less identities; callers that accept
// super_admin should go through rbac.TenantScope.
func TenantID(ctx context.Context) (string, error) {
	return field(ctx, "tenant_id", func(id Identity) string { return id.TenantID })
}

func Role(ctx context.Context) (string, error) {
	return field(ctx, "role", func(id Identity) string { return id.Role })
}

func field(ctx context.Context, name string, get func(Identity) string) (string, error) {
	id, ok := IdentityFrom(ctx)
	if !ok {
		return "", ErrNoIdentity
	}
	if v := get(id); v != "" {
		return v, nil
	}
	return "", errors.New(name + " not in context")
}
