package audit

import "context"

type scopeKey struct{}

// WithScope attaches the call scope so deeper layers can stamp events.
func WithScope(ctx context.Context, sc Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, sc)
}

// ScopeFrom returns the attached scope, or the zero Scope.
func ScopeFrom(ctx context.Context) Scope {
	if sc, ok := ctx.Value(scopeKey{}).(Scope); ok {
		return sc
	}
	return Scope{}
}
