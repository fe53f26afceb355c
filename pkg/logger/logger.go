package logger

import (
	"context"
	"log/slog"
	"os"
)

// New returns a production-friendly structured logger.
// No business logic should depend on logging implementation details.
func New(appEnv string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// ForCall scopes a logger to one call session.
// Empty ids are omitted so generic sessions do not log blank tenant fields.
func ForCall(l *slog.Logger, sessionID, tenantID, callSID string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	attrs := []any{"session_id", sessionID}
	if tenantID != "" {
		attrs = append(attrs, "tenant_id", tenantID)
	}
	if callSID != "" {
		attrs = append(attrs, "call_sid", callSID)
	}
	return l.With(attrs...)
}
