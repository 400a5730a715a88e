// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package twitch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

// pubsubTokenTTL is the lifetime of the signed PubSub token.
const pubsubTokenTTL = 30 * time.Minute

type pubsubPerms struct {
	Send []string `json:"send"`
}

type pubsubClaims struct {
	ChannelID   string      `json:"channel_id"`
	UserID      string      `json:"user_id"`
	Role        string      `json:"role"`
	PubSubPerms pubsubPerms `json:"pubsub_perms"`
	jwt.RegisteredClaims
}

type pubsubMessage struct {
	Target        []string `json:"target"`
	BroadcasterID string   `json:"broadcaster_id"`
	Global        bool     `json:"is_global_broadcast"`
	Message       string   `json:"message"`
}

// PubSubToken signs the external token used to broadcast to a channel.
func (c *Client) PubSubToken(channelID string, now time.Time) (string, error) {
	claims := pubsubClaims{
		ChannelID:   channelID,
		UserID:      c.cfg.OwnerID,
		Role:        "external",
		PubSubPerms: pubsubPerms{Send: []string{"broadcast"}},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(pubsubTokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.ExtensionSecret)
	if err != nil {
		return "", fmt.Errorf("sign pubsub token: %w", err)
	}
	return signed, nil
}

// SendPubSub broadcasts message to every extension instance on the channel.
func (c *Client) SendPubSub(ctx context.Context, channelID string, message []byte) error {
	token, err := c.PubSubToken(channelID, time.Now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(pubsubMessage{
		Target:        []string{"broadcast"},
		BroadcasterID: channelID,
		Message:       string(message),
	})
	if err != nil {
		return err
	}

	req, err := c.helix(ctx, http.MethodPost, "/extensions/pubsub", token, bytes.NewReader(body))
	if err != nil {
		return err
	}
	_, err = c.do("pubsub", req)
	return err
}
