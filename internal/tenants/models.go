package tenants

import (
	"context"
	"errors"
)

// Tenant is a clinic account as stored by the tenant store.
type Tenant struct {
	ID             string `json:"id" db:"id"`
	RoutingKey     string `json:"routing_key" db:"routing_key"`
	Name           string `json:"name" db:"name"`
	CallbackNumber string `json:"callback_number" db:"callback_number"`
	AIInstructions string `json:"ai_instructions" db:"ai_instructions"`

	// Voice and Greeting are optional per-tenant overrides.
	Voice    string `json:"voice,omitempty" db:"voice"`
	Greeting string `json:"greeting,omitempty" db:"greeting"`
}

// Context is the immutable snapshot a call session works from.
// It is resolved once when the session starts and never refreshed.
type Context struct {
	TenantID       string `json:"tenant_id,omitempty"`
	DisplayName    string `json:"display_name,omitempty"`
	CallbackNumber string `json:"callback_number,omitempty"`
	Instructions   string `json:"-"`
	Greeting       string `json:"-"`
	VoiceProfile   string `json:"voice_profile,omitempty"`

	// Generic is true when no tenant could be resolved.
	Generic bool `json:"generic"`
}

var ErrNotFound = errors.New("tenants: not found")

// Store is the read-only tenant lookup used by the resolver.
// Implementations return ErrNotFound when no tenant owns the key.
type Store interface {
	GetTenantByRoutingKey(ctx context.Context, key string) (Tenant, error)
}
