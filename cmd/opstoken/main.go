// Command opstoken mints an access token for the operations API.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"clinic-voice-bridge/internal/auth"
	"clinic-voice-bridge/internal/config"
	"clinic-voice-bridge/internal/rbac"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	userID := flag.String("user", "", "user id (sub claim)")
	tenantID := flag.String("tenant", "", "tenant id; empty only for super_admin")
	role := flag.String("role", rbac.RoleViewer, "operator, viewer or super_admin")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "opstoken: -user is required")
		os.Exit(2)
	}
	if !rbac.IsKnownRole(*role) {
		fmt.Fprintf(os.Stderr, "opstoken: unknown role %q\n", *role)
		os.Exit(2)
	}
	if *tenantID == "" && !rbac.IsSuperAdmin(*role) {
		fmt.Fprintln(os.Stderr, "opstoken: -tenant is required for tenant-scoped roles")
		os.Exit(2)
	}

	// Tokens must verify against the bridge, so load the same environment.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	m, err := auth.NewManager(cfg.Auth)
	if err != nil {
		slog.Error("auth init failed", "err", err)
		os.Exit(1)
	}
	tok, err := m.IssueAccess(time.Now(), *userID, *tenantID, *role)
	if err != nil {
		slog.Error("issue token failed", "err", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
