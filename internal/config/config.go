// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package config

import (
	"fmt"
	"time"
)

// Config is the root configuration shared by cmd/hub and cmd/aggregator.
type Config struct {
	Hub        HubConfig        `koanf:"hub"`
	Aggregator AggregatorConfig `koanf:"aggregator"`
	Twitch     TwitchConfig     `koanf:"twitch"`
	Security   SecurityConfig   `koanf:"security"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// HubConfig configures the local hub that runs next to the stream.
type HubConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// DataPath is the badger directory holding providers and settings.
	DataPath string `koanf:"data_path"`

	// AggregatorURL is used until the streamer saves a different one
	// through Config.Change.
	AggregatorURL string `koanf:"aggregator_url"`

	ReconnectBackoff time.Duration `koanf:"reconnect_backoff"`

	// SendBuffer is the per-session outbound queue length. A session whose
	// queue is full loses messages instead of stalling the hub.
	SendBuffer int `koanf:"send_buffer"`
}

// Addr returns the listen address.
func (h HubConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// AggregatorConfig configures the public aggregator service.
type AggregatorConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// StaticDir receives content-addressed poll option images.
	StaticDir string `koanf:"static_dir"`

	// StaticURLPrefix is prepended to image file names when they are sent
	// to viewers, e.g. https://ebs.example.com/static/.
	StaticURLPrefix string `koanf:"static_url_prefix"`

	HeartbeatInterval    time.Duration `koanf:"heartbeat_interval"`
	IntermediateInterval time.Duration `koanf:"intermediate_interval"`
	MinPollDuration      time.Duration `koanf:"min_poll_duration"`

	// PubSubMaxBytes is the largest payload sent through extension PubSub;
	// larger messages go to each viewer socket instead.
	PubSubMaxBytes int `koanf:"pubsub_max_bytes"`
}

// Addr returns the listen address.
func (a AggregatorConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// TwitchConfig holds extension credentials and API endpoints.
type TwitchConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`

	// ExtensionSecret is the base64 encoded shared secret used to verify
	// viewer tokens and to sign PubSub requests.
	ExtensionSecret string `koanf:"extension_secret"`
	OwnerID         string `koanf:"owner_id"`
	RedirectURI     string `koanf:"redirect_uri"`

	AuthURL    string `koanf:"auth_url"`
	TokenURL   string `koanf:"token_url"`
	RevokeURL  string `koanf:"revoke_url"`
	APIBaseURL string `koanf:"api_base_url"`

	RequiredScopes []string `koanf:"required_scopes"`

	SubscriptionCacheTTL time.Duration `koanf:"subscription_cache_ttl"`
	RequestTimeout       time.Duration `koanf:"request_timeout"`
}

// SecurityConfig covers HTTP hardening and vote throttling.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// VotesPerSecond and VoteBurst shape the token bucket applied to each
	// viewer connection.
	VotesPerSecond float64 `koanf:"votes_per_second"`
	VoteBurst      int     `koanf:"vote_burst"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
