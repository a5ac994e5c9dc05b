// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

// Package main is the entry point for the Mosaicus layout server.
//
// Mosaicus orchestrates interactive media layouts across the devices
// participating in a shared experience: TVs, tablets and phones join a
// context, a layout document declares component constraints, and the
// engine packs components onto device regions whenever anything changes.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: settings from environment variables and an optional
//     config file (Koanf v2)
//  2. Store: BadgerDB document store for contexts, documents and layouts
//  3. WebSocket Hub: layout push to connected devices
//  4. Engine Service: the stateful orchestration layer over the pure
//     layout evaluator
//  5. HTTP Server: REST API (Chi) plus the websocket upgrade endpoint
//
// All long-running pieces run under a Suture supervisor tree with
// storage, messaging and api layers; a crash in one layer restarts only
// that layer's services.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables (MOSAICUS_ prefix, double
// underscore separates section from field, e.g. MOSAICUS_SERVER__PORT),
// then config.yaml, then built-in defaults.
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP
// server drains in-flight requests, the hub closes client connections,
// and the store is closed last.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/mosaicus/internal/api"
	"github.com/tomtom215/mosaicus/internal/config"
	"github.com/tomtom215/mosaicus/internal/engine"
	"github.com/tomtom215/mosaicus/internal/logging"
	"github.com/tomtom215/mosaicus/internal/store"
	"github.com/tomtom215/mosaicus/internal/supervisor"
	ws "github.com/tomtom215/mosaicus/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Mosaicus with supervisor tree")
	logging.Info().
		Str("store_path", cfg.Store.Path).
		Bool("in_memory", cfg.Store.InMemory).
		Bool("auth_enabled", cfg.Security.AuthEnabled).
		Msg("Configuration loaded")

	st, err := store.Open(store.Options{
		Path:           cfg.Store.Path,
		InMemory:       cfg.Store.InMemory,
		GCDiscardRatio: cfg.Store.GCDiscardRatio,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()
	logging.Info().Msg("Store opened")

	if cfg.Security.AuthEnabled && cfg.Security.JWTSecret == "" {
		logging.Fatal().Msg("Auth enabled but no JWT secret configured (MOSAICUS_SECURITY__JWT_SECRET)")
	}
	if !cfg.Security.AuthEnabled {
		logging.Warn().Msg("API authentication is disabled; all endpoints are open")
	}

	// Hub before the engine service: the service pushes layouts and
	// diffs through it after every evaluation.
	hub := ws.NewHub()
	svc := engine.NewService(st, hub, cfg.Engine)

	router := api.NewRouter(svc, hub, cfg)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Bridge zerolog to slog for sutureslog
	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddStorageService(&supervisor.StoreGCService{Store: st, Interval: cfg.Store.GCInterval})
	tree.AddMessagingService(&supervisor.HubService{Hub: hub})
	tree.AddAPIService(&supervisor.HTTPService{Server: server, ShutdownTimeout: cfg.Server.ShutdownTimeout})
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor closes the channel
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, s := range unstopped {
		logging.Warn().Str("service", s.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}
