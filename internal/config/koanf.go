// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/modvote/config.yaml",
	"/etc/modvote/config.yml",
}

// ConfigPathEnvVar names the environment variable holding an explicit
// config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Hub: HubConfig{
			Host:             "127.0.0.1",
			Port:             8081,
			DataPath:         "data",
			AggregatorURL:    "ws://localhost:30000",
			ReconnectBackoff: time.Second,
			SendBuffer:       256,
		},
		Aggregator: AggregatorConfig{
			Host:                 "0.0.0.0",
			Port:                 30000,
			StaticDir:            "static",
			StaticURLPrefix:      "/static/",
			HeartbeatInterval:    30 * time.Second,
			IntermediateInterval: 2 * time.Second,
			MinPollDuration:      30 * time.Second,
			PubSubMaxBytes:       5 * 1024,
		},
		Twitch: TwitchConfig{
			AuthURL:              "https://id.twitch.tv/oauth2/authorize",
			TokenURL:             "https://id.twitch.tv/oauth2/token",
			RevokeURL:            "https://id.twitch.tv/oauth2/revoke",
			APIBaseURL:           "https://api.twitch.tv/helix",
			RequiredScopes:       []string{"channel:read:subscriptions"},
			SubscriptionCacheTTL: time.Minute,
			RequestTimeout:       10 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
			VotesPerSecond:    5,
			VoteBurst:         10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads defaults, the optional config file and the environment, then
// validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths lists keys whose env values are comma separated.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"twitch.required_scopes",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok || raw == "" {
			continue
		}
		var parts []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf keys.
// Variables not listed here are ignored.
var envMappings = map[string]string{
	"hub_host":          "hub.host",
	"hub_port":          "hub.port",
	"data_path":         "hub.data_path",
	"aggregator_url":    "hub.aggregator_url",
	"ebs_url":           "hub.aggregator_url",
	"reconnect_backoff": "hub.reconnect_backoff",
	"send_buffer":       "hub.send_buffer",

	"host":                  "aggregator.host",
	"port":                  "aggregator.port",
	"static_dir":            "aggregator.static_dir",
	"static_url_prefix":     "aggregator.static_url_prefix",
	"heartbeat_interval":    "aggregator.heartbeat_interval",
	"intermediate_interval": "aggregator.intermediate_interval",
	"min_poll_duration":     "aggregator.min_poll_duration",
	"pubsub_max_bytes":      "aggregator.pubsub_max_bytes",

	"client_id":              "twitch.client_id",
	"api_key":                "twitch.client_secret",
	"ebs_key":                "twitch.extension_secret",
	"owner_id":               "twitch.owner_id",
	"redirect_uri":           "twitch.redirect_uri",
	"twitch_auth_url":        "twitch.auth_url",
	"twitch_token_url":       "twitch.token_url",
	"twitch_revoke_url":      "twitch.revoke_url",
	"twitch_api_url":         "twitch.api_base_url",
	"twitch_scopes":          "twitch.required_scopes",
	"subscription_cache_ttl": "twitch.subscription_cache_ttl",
	"twitch_request_timeout": "twitch.request_timeout",

	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_requests",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"votes_per_second":    "security.votes_per_second",
	"vote_burst":          "security.vote_burst",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
