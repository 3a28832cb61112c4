// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

// Command server runs the TaskMesh realtime server: a WebSocket gateway
// for team chat and live notifications, plus a small HTTP API through
// which backend producers enqueue notifications.
//
// Configuration comes from config.yaml (or CONFIG_PATH) and environment
// variables:
//
//	WS_PORT=8080 \
//	HTTP_PORT=8081 \
//	NOTIFICATION_QUEUE_PATH=/data/taskmesh/notification_queue.json \
//	JWT_SECRET=change-me-please-32-bytes-min \
//	DATABASE_URL=postgres://taskmesh:pw@localhost:5432/taskmesh \
//	DATABASE_ENABLED=true \
//	./server
//
// Without DATABASE_ENABLED the server keeps chat messages in memory,
// which is useful for local development.
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

	"github.com/taskmesh/taskmesh/internal/api"
	"github.com/taskmesh/taskmesh/internal/auth"
	"github.com/taskmesh/taskmesh/internal/bridge"
	"github.com/taskmesh/taskmesh/internal/config"
	"github.com/taskmesh/taskmesh/internal/gateway"
	"github.com/taskmesh/taskmesh/internal/logging"
	"github.com/taskmesh/taskmesh/internal/store"
	"github.com/taskmesh/taskmesh/internal/supervisor"
)

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Int("ws_port", cfg.Gateway.Port).
		Int("http_port", cfg.HTTP.Port).
		Bool("database_enabled", cfg.Database.Enabled).
		Bool("auth_enabled", cfg.Security.JWTSecret != "").
		Msg("Starting TaskMesh realtime server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue, err := bridge.New(bridge.Config{
		Path:           cfg.Bridge.Path,
		LockTimeout:    cfg.Bridge.LockTimeout,
		LockRetryDelay: cfg.Bridge.LockRetryDelay,
	})
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Bridge.Path).Msg("Failed to open notification queue")
	}

	var msgStore store.MessageStore
	if cfg.Database.Enabled {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.DSN)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pg.Close()
		msgStore = pg
		logging.Info().Msg("Using PostgreSQL message store")
	} else {
		msgStore = store.NewMemoryStore(nil)
		logging.Warn().Msg("Database disabled, chat messages held in memory only")
	}
	msgStore = store.NewBreakerStore(msgStore, store.BreakerConfig{})

	var resolver auth.TokenResolver
	if cfg.Security.JWTSecret != "" {
		resolver = auth.NewJWTResolver(cfg.Security.JWTSecret)
	} else {
		logging.Warn().Msg("JWT_SECRET not set, token authentication disabled")
	}

	gw := gateway.New(gateway.Config{
		Host:           cfg.Gateway.Host,
		Port:           cfg.Gateway.Port,
		Tick:           cfg.Gateway.Tick,
		ReadBufferSize: cfg.Gateway.ReadBufferSize,
		WriteTimeout:   cfg.Gateway.WriteTimeout,
	}, queue, msgStore, resolver)

	router := api.NewRouter(api.RouterConfig{
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		RateLimitReqs:   cfg.HTTP.RateLimitReqs,
		RateLimitWindow: cfg.HTTP.RateLimitWindow,
	}, queue, resolver)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.Timeout,
		WriteTimeout:      cfg.HTTP.Timeout,
	}

	tree := supervisor.NewTree(
		slog.New(logging.NewSlogHandler()),
		supervisor.DefaultTreeConfig(),
	)
	tree.AddMessagingService(gw)
	tree.AddAPIService(supervisor.NewHTTPService("producer-api", server, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Server stopped gracefully")
}
