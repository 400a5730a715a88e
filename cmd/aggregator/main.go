// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

// Package main is the entry point of the modvote aggregator, the public
// extension backend.
//
// Hubs authorize a channel with a Twitch OAuth code and run polls through
// it; extension front-ends connect with their Twitch JWT and vote. Poll
// option images are stored under aggregator.static_dir and served at
// /static/.
//
// # Configuration
//
// Besides config.yaml the aggregator reads its Twitch credentials from the
// environment:
//   - CLIENT_ID: extension client id
//   - API_KEY: extension client secret
//   - EBS_KEY: base64 extension secret
//   - OWNER_ID: extension owner user id
//   - REDIRECT_URI: OAuth redirect URI registered with Twitch
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/modvote/internal/aggregator"
	"github.com/tomtom215/modvote/internal/api"
	"github.com/tomtom215/modvote/internal/config"
	"github.com/tomtom215/modvote/internal/logging"
	"github.com/tomtom215/modvote/internal/supervisor"
	"github.com/tomtom215/modvote/internal/twitch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("Invalid configuration")
	}
	if err := cfg.ValidateAggregator(); err != nil {
		logging.Fatal().Err(err).Msg("Invalid aggregator configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("addr", cfg.Aggregator.Addr()).Msg("Starting modvote aggregator")

	secret, err := cfg.ExtensionSecretBytes()
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid extension secret")
	}
	twitchCfg, err := twitch.ConfigFrom(cfg.Twitch)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid Twitch configuration")
	}
	tw, err := twitch.NewClient(twitchCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create Twitch client")
	}
	defer tw.Close()

	images, err := aggregator.NewImageStore(cfg.Aggregator.StaticDir, cfg.Aggregator.StaticURLPrefix)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create image store")
	}

	srv := aggregator.NewServer(tw, aggregator.Options{
		ExtensionSecret:      secret,
		Origins:              cfg.Security.CORSOrigins,
		HeartbeatInterval:    cfg.Aggregator.HeartbeatInterval,
		IntermediateInterval: cfg.Aggregator.IntermediateInterval,
		MinPollDuration:      cfg.Aggregator.MinPollDuration,
		RequestTimeout:       cfg.Twitch.RequestTimeout,
		PubSubMaxBytes:       cfg.Aggregator.PubSubMaxBytes,
		VotesPerSecond:       cfg.Security.VotesPerSecond,
		VoteBurst:            cfg.Security.VoteBurst,
		Images:               images,
	})
	defer srv.Shutdown()

	router := api.NewRouter(api.RouterConfig{
		WebSocket: srv,
		Health: func() (map[string]interface{}, bool) {
			channels, viewers := srv.Stats()
			return map[string]interface{}{"channels": channels, "viewers": viewers}, true
		},
		StaticDir:  cfg.Aggregator.StaticDir,
		Middleware: api.NewMiddleware(api.MiddlewareConfigFrom(cfg.Security)),
	})
	server := &http.Server{
		Addr:              cfg.Aggregator.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	tree := supervisor.NewTree("modvote-aggregator", logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(srv)
	tree.AddAPIService(supervisor.NewHTTPServerService("http-server", server, 10*time.Second))

	if err := <-tree.ServeBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}
	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}
	logging.Info().Msg("Aggregator stopped gracefully")
}
