package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/CoachGate/internal/adapter/agent"
	cghttp "github.com/Strob0t/CoachGate/internal/adapter/http"
	cgnats "github.com/Strob0t/CoachGate/internal/adapter/nats"
	"github.com/Strob0t/CoachGate/internal/adapter/postgres"
	"github.com/Strob0t/CoachGate/internal/adapter/ristretto"
	"github.com/Strob0t/CoachGate/internal/adapter/ws"
	"github.com/Strob0t/CoachGate/internal/audit"
	"github.com/Strob0t/CoachGate/internal/config"
	"github.com/Strob0t/CoachGate/internal/logger"
	"github.com/Strob0t/CoachGate/internal/observability"
	"github.com/Strob0t/CoachGate/internal/port/trail"
	"github.com/Strob0t/CoachGate/internal/resilience"
	"github.com/Strob0t/CoachGate/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"agent_base_url", cfg.Agent.BaseURL,
	)

	ctx := context.Background()

	shutdownTracer := observability.InitTracer(cfg.Logging.Service)
	defer func() { _ = shutdownTracer(ctx) }()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	var runTrail trail.Publisher
	if cfg.NATS.URL != "" {
		natsTrail, err := cgnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = natsTrail.Close() }()
		runTrail = natsTrail
	} else {
		slog.Warn("nats url empty, run trail disabled")
	}

	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	// --- Agent client ---

	agentClient := agent.NewClient(cfg.Agent.BaseURL, cfg.Agent.Secret)
	agentClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Services ---

	coord := audit.NewCoordinator()
	eventStore := postgres.NewEventStore(pool)
	profileStore := postgres.NewProfileStore(pool)
	tokenStore := postgres.NewTokenStore(pool)

	profiles := service.NewProfilesService(profileStore, cache, cfg.Cache.TTL)
	chat := service.NewChatService(eventStore)
	tools := service.NewToolsService(eventStore, profiles)
	gate := service.NewToolGate(coord, metrics)
	runs := service.NewRunService(coord, agentClient, eventStore, profiles, chat, metrics, cfg.Agent.MaxTurns)

	wsHandler := ws.NewHandler(tokenStore, coord, runs, runTrail, metrics)

	// --- HTTP ---

	handlers := cghttp.NewHandlers(tools, gate)

	r := chi.NewRouter()
	r.Use(cghttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cghttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(observability.HTTPMiddleware(cfg.Logging.Service))

	cghttp.MountRoutes(r, handlers, wsHandler.HandleWS, cfg.Agent.Secret)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// No ReadTimeout/WriteTimeout: websocket connections and the blocking
		// tool-await callback are long-lived.
		IdleTimeout: 120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
