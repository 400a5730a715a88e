// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package twitch

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/modvote/internal/cache"
	"github.com/tomtom215/modvote/internal/config"
	"github.com/tomtom215/modvote/internal/metrics"
)

// maxResponseBytes bounds every Twitch response body.
const maxResponseBytes = 1 << 20

// StatusError is a non-2xx Twitch response.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("twitch %s: status %d: %s", e.Endpoint, e.Code, e.Body)
}

// Config holds the credentials and endpoints of a Client.
type Config struct {
	ClientID        string
	ClientSecret    string
	ExtensionSecret []byte
	OwnerID         string
	RedirectURI     string

	AuthURL    string
	TokenURL   string
	RevokeURL  string
	APIBaseURL string

	RequiredScopes []string

	SubscriptionCacheTTL time.Duration
	RequestTimeout       time.Duration
	Breaker              BreakerSettings

	// HTTPClient defaults to a client with RequestTimeout.
	HTTPClient *http.Client
}

// ConfigFrom converts the loaded configuration, decoding the base64
// extension secret.
func ConfigFrom(c config.TwitchConfig) (Config, error) {
	secret, err := base64.StdEncoding.DecodeString(c.ExtensionSecret)
	if err != nil {
		return Config{}, fmt.Errorf("decode extension secret: %w", err)
	}
	return Config{
		ClientID:             c.ClientID,
		ClientSecret:         c.ClientSecret,
		ExtensionSecret:      secret,
		OwnerID:              c.OwnerID,
		RedirectURI:          c.RedirectURI,
		AuthURL:              c.AuthURL,
		TokenURL:             c.TokenURL,
		RevokeURL:            c.RevokeURL,
		APIBaseURL:           c.APIBaseURL,
		RequiredScopes:       c.RequiredScopes,
		SubscriptionCacheTTL: c.SubscriptionCacheTTL,
		RequestTimeout:       c.RequestTimeout,
		Breaker:              DefaultBreakerSettings(),
	}, nil
}

// Client is a Twitch API client shared by every channel connection.
type Client struct {
	cfg     Config
	http    *http.Client
	rp      rp.RelyingParty
	breaker *gobreaker.CircuitBreaker[*response]
	subs    *cache.Cache[string, bool]
	group   singleflight.Group
}

// NewClient creates a Client. Close releases the subscription cache.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.SubscriptionCacheTTL <= 0 {
		cfg.SubscriptionCacheTTL = time.Minute
	}
	if cfg.Breaker == (BreakerSettings{}) {
		cfg.Breaker = DefaultBreakerSettings()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.RequiredScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	relyingParty, err := rp.NewRelyingPartyOAuth(oauthCfg, rp.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create relying party: %w", err)
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		rp:      relyingParty,
		breaker: newBreaker(cfg.Breaker),
		subs:    cache.New[string, bool](cfg.SubscriptionCacheTTL),
	}, nil
}

// Close stops the subscription cache janitor.
func (c *Client) Close() {
	c.subs.Close()
}

type response struct {
	code int
	body []byte
}

// do sends req through the circuit breaker. Non-2xx responses are returned
// as *StatusError together with the response.
func (c *Client) do(endpoint string, req *http.Request) (*response, error) {
	start := time.Now()
	resp, err := c.breaker.Execute(func() (*response, error) {
		r, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer r.Body.Close()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxResponseBytes))
		if err != nil {
			return nil, err
		}
		out := &response{code: r.StatusCode, body: body}
		if r.StatusCode < 200 || r.StatusCode > 299 {
			return out, &StatusError{Endpoint: endpoint, Code: r.StatusCode, Body: string(bytes.TrimSpace(body))}
		}
		return out, nil
	})
	metrics.RecordTwitchRequest(endpoint, time.Since(start), err)
	return resp, breakerError(err)
}

// helix builds an authenticated Helix request.
func (c *Client) helix(ctx context.Context, method, path, bearer string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-Id", c.cfg.ClientID)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// isStatus reports whether err is a StatusError with the given code.
func isStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
