// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

// Package main is the entry point of the modvote hub.
//
// The hub runs on the streamer's machine. Modification providers and the
// streamer's configuration UI connect to it over websocket; it persists
// provider registrations and settings, schedules polls and forwards them
// to the aggregator.
//
// # Application Architecture
//
// The hub initializes components in the following order:
//
//  1. Configuration: Koanf v2 (defaults, config.yaml, environment)
//  2. Registry: BadgerDB store under hub.data_path
//  3. Hub: session registry gated by the casbin policy
//  4. Orchestrator: poll manager and aggregator link
//  5. HTTP Server: websocket on "/", /healthz and /metrics
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the supervisor tree. The HTTP server gets 10s
// to drain and the registry is closed after every service stopped.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/modvote/internal/api"
	"github.com/tomtom215/modvote/internal/authz"
	"github.com/tomtom215/modvote/internal/config"
	"github.com/tomtom215/modvote/internal/hub"
	"github.com/tomtom215/modvote/internal/logging"
	"github.com/tomtom215/modvote/internal/orchestrator"
	"github.com/tomtom215/modvote/internal/registry"
	"github.com/tomtom215/modvote/internal/supervisor"
	"github.com/tomtom215/modvote/internal/websocket"
)

const (
	gcInterval     = 10 * time.Minute
	gcDiscardRatio = 0.5
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("Invalid configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("addr", cfg.Hub.Addr()).Str("data_path", cfg.Hub.DataPath).Msg("Starting modvote hub")

	store, err := registry.OpenStore(registry.StoreConfig{Path: cfg.Hub.DataPath})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open registry store")
	}
	reg, err := registry.New(store, cfg.Hub.AggregatorURL)
	if err != nil {
		_ = store.Close()
		logging.Fatal().Err(err).Msg("Failed to load registry")
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing registry")
		}
	}()

	enforcer, err := authz.NewEnforcer(nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create authorization enforcer")
	}

	h := hub.New(enforcer)
	link := orchestrator.NewLink(h.Publish, orchestrator.LinkConfig{
		Backoff:    cfg.Hub.ReconnectBackoff,
		SendBuffer: cfg.Hub.SendBuffer,
	})
	h.SetDispatcher(orchestrator.New(h, reg, link, orchestrator.Options{}))

	router := api.NewRouter(api.RouterConfig{
		WebSocket: api.HubSocket(h, cfg.Security.CORSOrigins, websocket.Options{SendBuffer: cfg.Hub.SendBuffer}),
		Health: func() (map[string]interface{}, bool) {
			return map[string]interface{}{
				"sessions":             h.SessionCount(),
				"aggregator_connected": link.Connected(),
			}, true
		},
		Middleware: api.NewMiddleware(api.MiddlewareConfigFrom(cfg.Security)),
	})
	server := &http.Server{
		Addr:              cfg.Hub.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree("modvote-hub", logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDataService(supervisor.NewPeriodicService("registry-gc", gcInterval, nil, func(context.Context) error {
		return store.RunGC(gcDiscardRatio)
	}))
	tree.AddMessagingService(h)
	tree.AddMessagingService(link)
	tree.AddAPIService(supervisor.NewHTTPServerService("http-server", server, 10*time.Second))

	run(ctx, cancel, tree)
	logging.Info().Msg("Hub stopped gracefully")
}

// run serves tree until a shutdown signal arrives or the tree fails.
func run(ctx context.Context, cancel context.CancelFunc, tree *supervisor.Tree) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := <-tree.ServeBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}
}
