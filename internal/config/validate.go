// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the sections both binaries rely on.
func (c *Config) Validate() error {
	if err := c.validateHub(); err != nil {
		return err
	}
	if err := c.validateAggregator(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateLogging()
}

// ValidateAggregator checks the Twitch credentials the aggregator needs.
func (c *Config) ValidateAggregator() error {
	t := c.Twitch
	if t.ClientID == "" {
		return fmt.Errorf("CLIENT_ID is required")
	}
	if t.ClientSecret == "" {
		return fmt.Errorf("API_KEY is required")
	}
	if t.OwnerID == "" {
		return fmt.Errorf("OWNER_ID is required")
	}
	if t.RedirectURI == "" {
		return fmt.Errorf("REDIRECT_URI is required")
	}
	if _, err := c.ExtensionSecretBytes(); err != nil {
		return err
	}
	for name, raw := range map[string]string{
		"twitch.auth_url":     t.AuthURL,
		"twitch.token_url":    t.TokenURL,
		"twitch.revoke_url":   t.RevokeURL,
		"twitch.api_base_url": t.APIBaseURL,
	} {
		if err := validateHTTPURL(name, raw); err != nil {
			return err
		}
	}
	return nil
}

// ExtensionSecretBytes decodes the base64 extension secret.
func (c *Config) ExtensionSecretBytes() ([]byte, error) {
	if c.Twitch.ExtensionSecret == "" {
		return nil, fmt.Errorf("EBS_KEY is required")
	}
	key, err := base64.StdEncoding.DecodeString(c.Twitch.ExtensionSecret)
	if err != nil {
		return nil, fmt.Errorf("EBS_KEY is not valid base64: %w", err)
	}
	return key, nil
}

func (c *Config) validateHub() error {
	if c.Hub.Port < 1 || c.Hub.Port > 65535 {
		return fmt.Errorf("hub.port must be between 1 and 65535, got %d", c.Hub.Port)
	}
	if c.Hub.DataPath == "" {
		return fmt.Errorf("hub.data_path is required")
	}
	u, err := url.Parse(c.Hub.AggregatorURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("hub.aggregator_url must be a ws:// or wss:// URL, got %q", c.Hub.AggregatorURL)
	}
	if c.Hub.ReconnectBackoff <= 0 {
		return fmt.Errorf("hub.reconnect_backoff must be positive")
	}
	if c.Hub.SendBuffer < 1 {
		return fmt.Errorf("hub.send_buffer must be at least 1")
	}
	return nil
}

func (c *Config) validateAggregator() error {
	a := c.Aggregator
	if a.Port < 1 || a.Port > 65535 {
		return fmt.Errorf("aggregator.port must be between 1 and 65535, got %d", a.Port)
	}
	if a.StaticDir == "" {
		return fmt.Errorf("aggregator.static_dir is required")
	}
	if a.HeartbeatInterval <= 0 || a.IntermediateInterval <= 0 {
		return fmt.Errorf("aggregator intervals must be positive")
	}
	if a.PubSubMaxBytes < 0 {
		return fmt.Errorf("aggregator.pubsub_max_bytes cannot be negative")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	s := c.Security
	if !s.RateLimitDisabled && (s.RateLimitRequests < 1 || s.RateLimitWindow <= 0) {
		return fmt.Errorf("security rate limit must be positive when enabled")
	}
	if s.VotesPerSecond <= 0 || s.VoteBurst < 1 {
		return fmt.Errorf("security vote throttle must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("logging.level %q is not a known level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func validateHTTPURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", name, raw)
	}
	return nil
}
