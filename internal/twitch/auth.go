// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/tomtom215/modvote/internal/logging"
	"github.com/tomtom215/modvote/internal/metrics"
	"github.com/tomtom215/modvote/internal/protocol"
)

// ErrMissingScopes is returned when the streamer granted fewer scopes than
// the aggregator needs.
var ErrMissingScopes = errors.New("authorization code grants insufficient scopes")

// ErrNoUser is returned when Helix returns no user for a token.
var ErrNoUser = errors.New("twitch returned no user for token")

// Grant is a streamer's access token.
type Grant struct {
	AccessToken string
	Scopes      []string
}

// Exchange trades an authorization code for an access token.
func (c *Client) Exchange(ctx context.Context, code string) (*Grant, error) {
	start := time.Now()
	tokens, err := rp.CodeExchange[*oidc.IDTokenClaims](ctx, code, c.rp)
	metrics.RecordTwitchRequest("token", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return &Grant{
		AccessToken: tokens.AccessToken,
		Scopes:      grantedScopes(tokens.Extra("scope")),
	}, nil
}

// grantedScopes reads the scope field, which Twitch sends as a JSON array
// and RFC 6749 as a space separated string.
func grantedScopes(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

// HasScopes reports whether granted contains every required scope.
func HasScopes(granted, required []string) bool {
	have := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		have[s] = struct{}{}
	}
	for _, s := range required {
		if _, ok := have[s]; !ok {
			return false
		}
	}
	return true
}

// Authorize exchanges the code, checks the scopes and looks up the channel.
// The token is revoked when a step after the exchange fails.
func (c *Client) Authorize(ctx context.Context, code string) (*Grant, protocol.Channel, error) {
	grant, err := c.Exchange(ctx, code)
	if err != nil {
		return nil, protocol.Channel{}, err
	}

	if !HasScopes(grant.Scopes, c.cfg.RequiredScopes) {
		c.revokeQuietly(grant)
		return nil, protocol.Channel{}, fmt.Errorf("%w: have %v, need %v", ErrMissingScopes, grant.Scopes, c.cfg.RequiredScopes)
	}

	channel, err := c.GetChannel(ctx, grant)
	if err != nil {
		c.revokeQuietly(grant)
		return nil, protocol.Channel{}, fmt.Errorf("look up channel: %w", err)
	}
	return grant, channel, nil
}

type helixUsers struct {
	Data []struct {
		ID              string `json:"id"`
		Login           string `json:"login"`
		DisplayName     string `json:"display_name"`
		ProfileImageURL string `json:"profile_image_url"`
	} `json:"data"`
}

// GetChannel returns the broadcaster identity of the token's owner.
func (c *Client) GetChannel(ctx context.Context, grant *Grant) (protocol.Channel, error) {
	req, err := c.helix(ctx, http.MethodGet, "/users", grant.AccessToken, nil)
	if err != nil {
		return protocol.Channel{}, err
	}
	resp, err := c.do("users", req)
	if err != nil {
		return protocol.Channel{}, err
	}

	var users helixUsers
	if err := json.Unmarshal(resp.body, &users); err != nil {
		return protocol.Channel{}, fmt.Errorf("decode users: %w", err)
	}
	if len(users.Data) == 0 {
		return protocol.Channel{}, ErrNoUser
	}

	u := users.Data[0]
	id, err := strconv.ParseInt(u.ID, 10, 64)
	if err != nil {
		return protocol.Channel{}, fmt.Errorf("parse user id %q: %w", u.ID, err)
	}
	return protocol.Channel{ID: id, Logo: u.ProfileImageURL, Name: u.Login}, nil
}

// Revoke invalidates the access token.
func (c *Client) Revoke(ctx context.Context, grant *Grant) error {
	form := url.Values{
		"client_id": {c.cfg.ClientID},
		"token":     {grant.AccessToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err = c.do("revoke", req)
	return err
}

// revokeQuietly revokes on a detached context and only logs failures.
func (c *Client) revokeQuietly(grant *Grant) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()
	err := c.Revoke(ctx, grant)
	logging.Debug().Bool("success", err == nil).Err(err).Msg("Revoked access token")
}
