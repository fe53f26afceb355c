package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clinic-voice-bridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

func TestRequireAccessToken_RefusesStreamToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t)
	tok, err := m.IssueStream(time.Now(), "CA1", "+15550001111")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := gin.New()
	r.GET("/x", RequireAccessToken(m), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("stream token must not open the ops api, got %d", w.Code)
	}
}

func TestRequireAccessToken_TagsLoggerWithOperator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t)
	tok, err := m.IssueAccess(time.Now(), "u-7", "tenant-1", "operator")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var buf bytes.Buffer
	r := gin.New()
	r.Use(logger.Middleware(slog.New(slog.NewJSONHandler(&buf, nil))))
	r.GET("/x", RequireAccessToken(m), func(c *gin.Context) {
		logger.FromGin(c).Info("closing session")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("lowercase scheme should be accepted, got %d", w.Code)
	}

	var line map[string]any
	if err := json.Unmarshal(bytes.SplitN(buf.Bytes(), []byte("\n"), 2)[0], &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line["msg"] != "closing session" || line["user_id"] != "u-7" || line["role"] != "operator" || line["tenant_id"] != "tenant-1" {
		t.Fatalf("handler log lacks operator identity: %v", line)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"Bearer ":      "",
		"":             "",
	}
	for in, want := range cases {
		got, ok := bearerToken(in)
		if got != want || ok != (want != "") {
			t.Fatalf("bearerToken(%q) = %q, %v", in, got, ok)
		}
	}
}

func TestIdentityAccessors(t *testing.T) {
	if _, err := UserID(context.Background()); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}

	ctx := WithIdentity(context.Background(), "u", "", "super_admin")
	id, ok := IdentityFrom(ctx)
	if !ok || id.UserID != "u" || id.Role != "super_admin" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if _, err := TenantID(ctx); err == nil {
		t.Fatalf("super_admin identity has no tenant")
	}
}
