package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic-voice-bridge/internal/audit"
	"clinic-voice-bridge/internal/auth"
	"clinic-voice-bridge/internal/booking"
	"clinic-voice-bridge/internal/calls"
	"clinic-voice-bridge/internal/config"
	"clinic-voice-bridge/internal/httpapi"
	"clinic-voice-bridge/internal/realtime"
	"clinic-voice-bridge/internal/reporting"
	"clinic-voice-bridge/internal/routing"
	"clinic-voice-bridge/internal/telephony"
	"clinic-voice-bridge/internal/tenants"
	"clinic-voice-bridge/internal/trace"
	"clinic-voice-bridge/pkg/logger"
	"clinic-voice-bridge/pkg/utils"
	"clinic-voice-bridge/pkg/wsconn"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

const serviceName = "clinic-voice-bridge"

func main() {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := trace.Initialize(rootCtx, trace.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.App.Env,
		Exporter:       cfg.Trace.Exporter,
		OTLPEndpoint:   cfg.Trace.OTLPEndpoint,
	}, log); err != nil {
		log.Error("trace init failed", "err", err)
		os.Exit(1)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, utils.PostgresConfig{
		DSN:             cfg.PostgresDSN(),
		AppName:         serviceName,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := utils.Migrate(rootCtx, db, log); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:       cfg.RedisAddr(),
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		ClientName: serviceName,
		PoolSize:   cfg.Redis.PoolSize,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	auditRepo := audit.NewPostgresRepo(db)
	auditSvc := audit.NewService(auditRepo)
	resolver := tenants.NewResolver(tenants.NewPostgresRepo(db), cfg.Realtime.Voice, log)
	limiter := routing.NewRedisLimiter(rdb, cfg.Bridge.MaxConcurrentCalls, 0)

	engine := routing.NewRoutingEngine(resolver, limiter, authManager,
		cfg.Bridge.PublicStreamURL, cfg.Bridge.MaxConcurrentCalls, log)
	twilioProvider := telephony.NewTwilioProvider(routing.NewEngineAdapter(engine), telephony.TwilioCredentials{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
	})

	socketCfg := wsconn.Config{
		WriteTimeout: cfg.Bridge.WriteTimeout,
		AudioQueue:   cfg.Bridge.AudioQueue,
	}
	dialer, err := realtime.NewDialer(realtime.Config{
		URL:         cfg.Realtime.URL,
		APIKey:      cfg.Realtime.APIKey,
		Model:       cfg.Realtime.Model,
		Voice:       cfg.Realtime.Voice,
		AudioFormat: cfg.Realtime.AudioFormat,
		Socket:      wsconn.Config{WriteTimeout: cfg.Bridge.WriteTimeout},
	}, log)
	if err != nil {
		log.Error("realtime dialer init failed", "err", err)
		os.Exit(1)
	}

	registry := calls.NewRegistry()

	// Sessions outlive their HTTP request but not the process.
	sessionCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()

	deps := dependencies{
		auth:     authManager,
		provider: twilioProvider,
		media: &httpapi.MediaStreamHandler{
			Tokens:     authManager,
			Tenants:    resolver,
			Limiter:    limiter,
			Controller: twilioProvider,
			Dialer:     dialer,
			Tools:      booking.NewExecutor(booking.NewPostgresRepo(db), auditSvc),
			Audit:      auditSvc,
			Registry:   registry,
			Socket:     socketCfg,
			Session: calls.Config{
				IdleTimeout:     cfg.Bridge.IdleTimeout,
				MaxCallDuration: cfg.Bridge.MaxCallDuration,
				DrainTimeout:    cfg.Bridge.DrainTimeout,
			},
			BaseContext: sessionCtx,
		},
		ops: httpapi.Handlers{
			Registry: registry,
			Reports:  reporting.NewService(auditRepo),
			DB:       db,
			Redis:    rdb,
		},
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, deps)

	// WriteTimeout stays unset: media streams are long-lived hijacked
	// connections and bound their own writes.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("bridge listening", "addr", srv.Addr, "env", cfg.App.Env, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated", "live_sessions", registry.Len())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Stop accepting calls first; Shutdown does not wait for hijacked sockets.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if err := registry.CloseAll(shutdownCtx); err != nil {
		log.Error("sessions did not close in time", "err", err, "live_sessions", registry.Len())
	}
	cancelSessions()

	if err := trace.Shutdown(shutdownCtx); err != nil {
		log.Error("trace shutdown failed", "err", err)
	}
}
