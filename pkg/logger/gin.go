package logger

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	headerRequestID = "X-Request-Id"
	ginLoggerKey    = "logger"
	ginRequestIDKey = "request_id"
)

// Middleware tags each request with a request_id and logs its outcome.
//
// Plain requests get one "request" line after the handler returns. Media
// stream upgrades are hijacked and live as long as the call, so they get a
// "stream requested" line on arrival and a "stream ended" line with the
// stream's lifetime instead of a status. Loggers derived from FromGin or
// From(c.Request.Context()) carry the request_id, which is how call session
// logs join the upgrade that started them.
func Middleware(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, rid)
		c.Set(ginRequestIDKey, rid)
		SetGin(c, l.With("request_id", rid))

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if websocket.IsWebSocketUpgrade(c.Request) {
			FromGin(c).Info("stream requested", "path", path, "remote_addr", c.ClientIP())
			c.Next()
			logStreamEnd(c, path, time.Since(start))
			return
		}

		c.Next()
		logRequest(c, path, time.Since(start))
	}
}

func logRequest(c *gin.Context, path string, dur time.Duration) {
	attrs := []any{
		"method", c.Request.Method,
		"path", path,
		"status", c.Writer.Status(),
		"duration_ms", float64(dur.Milliseconds()),
	}
	if len(c.Errors) > 0 {
		FromGin(c).Error("request", append(attrs, "errors", c.Errors.String())...)
		return
	}
	FromGin(c).Info("request", attrs...)
}

func logStreamEnd(c *gin.Context, path string, dur time.Duration) {
	attrs := []any{"path", path, "duration_s", dur.Seconds()}
	if len(c.Errors) > 0 {
		FromGin(c).Error("stream ended", append(attrs, "errors", c.Errors.String())...)
		return
	}
	FromGin(c).Info("stream ended", attrs...)
}

// SetGin replaces the request-scoped logger, on the Gin context and on the
// request context, so later middleware can add attributes (e.g. the caller's
// identity) that every handler log line inherits.
func SetGin(c *gin.Context, l *slog.Logger) {
	c.Set(ginLoggerKey, l)
	c.Request = c.Request.WithContext(With(c.Request.Context(), l))
}

// FromGin pulls the request-scoped logger from Gin context.
func FromGin(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(ginLoggerKey); ok {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// RequestID returns the id Middleware assigned, or "" outside it.
func RequestID(c *gin.Context) string {
	return c.GetString(ginRequestIDKey)
}
