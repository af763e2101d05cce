// Package main is the entry point for the Wayra collaboration server.
// Its sole responsibility is wiring dependencies together and starting the
// server. No business logic belongs here.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wayra/wayra-collab/internal/bridge"
	"github.com/wayra/wayra-collab/internal/collab"
	"github.com/wayra/wayra-collab/internal/config"
	"github.com/wayra/wayra-collab/internal/handler"
	"github.com/wayra/wayra-collab/internal/middleware"
	"github.com/wayra/wayra-collab/internal/repo"
	"github.com/wayra/wayra-collab/internal/store"
	"github.com/wayra/wayra-collab/spec"
)

// maxBodySize bounds REST request bodies. WebSocket frames have their own
// limit in the handler package.
const maxBodySize = 1 << 20 // 1 MiB

func main() {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	// JSON handler writes machine-readable output suitable for log aggregators.
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// --- Database ---------------------------------------------------------
	// pgxpool manages a pool of Postgres connections.
	// New() does not open connections immediately — the first query does.
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify the DB is reachable before accepting traffic.
	if err := pool.Ping(context.Background()); err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connection established")

	// --- Redis ------------------------------------------------------------
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.Info("redis connection established")

	// --- Collaboration core -----------------------------------------------
	tripRepo := repo.NewTripRepo(pool)
	hub := collab.NewHub()
	eventBridge := bridge.New(rdb, logger)

	svc := collab.NewService(collab.Deps{
		Auth:        tripRepo,
		Persister:   tripRepo,
		Cache:       store.NewTripCache(rdb, ""),
		Presence:    store.NewPresenceStore(rdb, ""),
		Activity:    store.NewActivityLog(rdb, "", cfg.ActivityLimit),
		Publisher:   eventBridge,
		Hub:         hub,
		Log:         logger,
		CallTimeout: cfg.CallTimeout,
	})

	// The bridge re-emits events published by other instances into this
	// instance's rooms. It resubscribes on failure until the context ends.
	bridgeCtx, stopBridge := context.WithCancel(context.Background())
	defer stopBridge()
	go func() {
		err := eventBridge.Run(bridgeCtx, func(tripID uuid.UUID, event string, payload json.RawMessage) {
			hub.Broadcast(tripID, event, payload, nil)
		})
		if err != nil {
			slog.Error("bridge stopped", "error", err)
		}
	}()

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID → RealIP → Logger → Recoverer.
	// RequestID generates a unique trace ID per request.
	// RealIP sets r.RemoteAddr from X-Forwarded-For / X-Real-IP (safe behind a proxy).
	// SlogLogger writes one structured JSON log line per request.
	// Recoverer catches panics and returns HTTP 500 instead of crashing.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(maxBodySize))

	srv := handler.NewServer(svc, logger)
	wsHandler := handler.NewWSHandler(svc, cfg.CORSOrigins, logger)

	r.Get("/healthz", srv.GetHealth)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(spec.OpenAPI)
	})
	r.Handle("/ws", wsHandler)
	r.Route("/api/trips/{id}", func(r chi.Router) {
		r.Get("/activity", srv.GetTripActivity)
		r.Get("/presence", srv.GetTripPresence)
		r.Post("/system-message", srv.PostSystemMessage)
	})

	// --- HTTP Server ------------------------------------------------------
	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	// They only govern plain HTTP requests: the websocket upgrade hijacks
	// the connection, after which the handler's own deadlines apply.
	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: wait for OS signal, then give in-flight requests
	// up to 15 seconds to complete before forcefully closing.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Stop cross-instance fanout, then close every live websocket
	// connection. Each connection's own goroutine runs its leave cleanup,
	// so presence entries don't outlive the instance. http.Server.Shutdown
	// does not touch hijacked connections, so this must happen first.
	stopBridge()
	if err := wsHandler.Shutdown(ctx); err != nil {
		slog.Warn("websocket shutdown incomplete", "error", err)
	}

	if err := httpSrv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
