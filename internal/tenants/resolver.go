package tenants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const (
	GenericGreeting = "Thank you for calling. Please hold while we connect you to our virtual assistant."

	GenericInstructions = "You are a friendly virtual receptionist answering a phone call. " +
		"Greet the caller, answer general questions briefly, and help them book an appointment. " +
		"Keep answers short because the caller is listening on a phone line."

	tenantInstructionsPrefix = "You are the virtual receptionist for %s, answering a phone call. " +
		"Keep answers short because the caller is listening on a phone line. " +
		"When the caller wants an appointment, collect their name and the requested time, " +
		"confirm the details, then call the create_booking tool."

	tenantGreeting = "Thank you for calling %s. Please hold while we connect you to our virtual assistant."
)

// Resolver turns a routing key into a tenant context.
// Resolve never fails; any lookup problem degrades to the generic context.
type Resolver struct {
	Store        Store
	DefaultVoice string
	Log          *slog.Logger
}

func NewResolver(store Store, defaultVoice string, l *slog.Logger) *Resolver {
	if l == nil {
		l = slog.Default()
	}
	return &Resolver{Store: store, DefaultVoice: defaultVoice, Log: l}
}

func (r *Resolver) Resolve(ctx context.Context, routingKey string) Context {
	key := strings.TrimSpace(routingKey)
	if key == "" || r.Store == nil {
		return r.Generic()
	}

	t, err := r.Store.GetTenantByRoutingKey(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		r.logger().Info("tenant not found, using generic context", "routing_key", key)
		return r.Generic()
	case err != nil:
		r.logger().Warn("tenant lookup failed, using generic context", "routing_key", key, "err", err)
		return r.Generic()
	}
	return r.fromTenant(t)
}

// Generic is the tenant-less context used when resolution yields nothing.
func (r *Resolver) Generic() Context {
	return Context{
		Instructions: GenericInstructions,
		Greeting:     GenericGreeting,
		VoiceProfile: r.DefaultVoice,
		Generic:      true,
	}
}

func (r *Resolver) fromTenant(t Tenant) Context {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		name = t.RoutingKey
	}

	var b strings.Builder
	fmt.Fprintf(&b, tenantInstructionsPrefix, name)
	if cb := strings.TrimSpace(t.CallbackNumber); cb != "" {
		fmt.Fprintf(&b, " If the caller needs a human, tell them to call back on %s.", cb)
	}
	if extra := strings.TrimSpace(t.AIInstructions); extra != "" {
		b.WriteString("\n\n")
		b.WriteString(extra)
	}

	greeting := strings.TrimSpace(t.Greeting)
	if greeting == "" {
		greeting = fmt.Sprintf(tenantGreeting, name)
	}
	voice := strings.TrimSpace(t.Voice)
	if voice == "" {
		voice = r.DefaultVoice
	}

	return Context{
		TenantID:       t.ID,
		DisplayName:    name,
		CallbackNumber: t.CallbackNumber,
		Instructions:   b.String(),
		Greeting:       greeting,
		VoiceProfile:   voice,
	}
}

func (r *Resolver) logger() *slog.Logger {
	if r.Log == nil {
		return slog.Default()
	}
	return r.Log
}
