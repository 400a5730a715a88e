// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv(ConfigPathEnvVar, "")
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Hub.AggregatorURL != "ws://localhost:30000" {
		t.Errorf("AggregatorURL = %q", cfg.Hub.AggregatorURL)
	}
	if cfg.Hub.ReconnectBackoff != time.Second {
		t.Errorf("ReconnectBackoff = %v, want 1s", cfg.Hub.ReconnectBackoff)
	}
	if cfg.Aggregator.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", cfg.Aggregator.HeartbeatInterval)
	}
	if cfg.Aggregator.IntermediateInterval != 2*time.Second {
		t.Errorf("IntermediateInterval = %v, want 2s", cfg.Aggregator.IntermediateInterval)
	}
	if cfg.Aggregator.PubSubMaxBytes != 5120 {
		t.Errorf("PubSubMaxBytes = %d, want 5120", cfg.Aggregator.PubSubMaxBytes)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "31000")
	t.Setenv("EBS_URL", "wss://ebs.example.com")
	t.Setenv("CLIENT_ID", "client")
	t.Setenv("API_KEY", "secret")
	t.Setenv("TWITCH_SCOPES", "a, b ,c")
	t.Setenv("CORS_ORIGINS", "https://x.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Aggregator.Port != 31000 {
		t.Errorf("Aggregator.Port = %d, want 31000", cfg.Aggregator.Port)
	}
	if cfg.Hub.AggregatorURL != "wss://ebs.example.com" {
		t.Errorf("AggregatorURL = %q", cfg.Hub.AggregatorURL)
	}
	if cfg.Twitch.ClientID != "client" || cfg.Twitch.ClientSecret != "secret" {
		t.Errorf("twitch credentials not mapped: %+v", cfg.Twitch)
	}
	if got := strings.Join(cfg.Twitch.RequiredScopes, "|"); got != "a|b|c" {
		t.Errorf("RequiredScopes = %q, want a|b|c", got)
	}
	if len(cfg.Security.CORSOrigins) != 1 || cfg.Security.CORSOrigins[0] != "https://x.example" {
		t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "modvote.yaml")
	body := "hub:\n  port: 9000\n  reconnect_backoff: 5s\naggregator:\n  static_dir: /tmp/img\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hub.Port != 9000 {
		t.Errorf("Hub.Port = %d, want 9000", cfg.Hub.Port)
	}
	if cfg.Hub.ReconnectBackoff != 5*time.Second {
		t.Errorf("ReconnectBackoff = %v, want 5s", cfg.Hub.ReconnectBackoff)
	}
	if cfg.Aggregator.StaticDir != "/tmp/img" {
		t.Errorf("StaticDir = %q", cfg.Aggregator.StaticDir)
	}
	if cfg.Aggregator.Port != 30000 {
		t.Errorf("defaults lost: Aggregator.Port = %d", cfg.Aggregator.Port)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad hub port", func(c *Config) { c.Hub.Port = 0 }},
		{"http aggregator url", func(c *Config) { c.Hub.AggregatorURL = "http://x" }},
		{"empty data path", func(c *Config) { c.Hub.DataPath = "" }},
		{"zero send buffer", func(c *Config) { c.Hub.SendBuffer = 0 }},
		{"zero heartbeat", func(c *Config) { c.Aggregator.HeartbeatInterval = 0 }},
		{"zero vote rate", func(c *Config) { c.Security.VotesPerSecond = 0 }},
		{"unknown level", func(c *Config) { c.Logging.Level = "loud" }},
		{"unknown format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateAggregator(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.ValidateAggregator(); err == nil {
		t.Fatal("expected error without credentials")
	}

	cfg.Twitch.ClientID = "id"
	cfg.Twitch.ClientSecret = "secret"
	cfg.Twitch.OwnerID = "owner"
	cfg.Twitch.RedirectURI = "https://example.com/auth"
	cfg.Twitch.ExtensionSecret = "not base64!"
	if err := cfg.ValidateAggregator(); err == nil {
		t.Fatal("expected error for invalid base64 secret")
	}

	cfg.Twitch.ExtensionSecret = base64.StdEncoding.EncodeToString([]byte("shared"))
	if err := cfg.ValidateAggregator(); err != nil {
		t.Fatalf("ValidateAggregator: %v", err)
	}
	key, err := cfg.ExtensionSecretBytes()
	if err != nil || string(key) != "shared" {
		t.Errorf("ExtensionSecretBytes = %q, %v", key, err)
	}
}

func TestEnvTransformIgnoresUnmapped(t *testing.T) {
	if got := envTransformFunc("PATH"); got != "" {
		t.Errorf("PATH mapped to %q", got)
	}
	if got := envTransformFunc("EBS_KEY"); got != "twitch.extension_secret" {
		t.Errorf("EBS_KEY mapped to %q", got)
	}
}
