// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package viewer

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/modvote/internal/validation"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or
// claim checks.
var ErrInvalidToken = errors.New("invalid extension token")

// Token roles issued by Twitch for extension front-ends.
const (
	TokenRoleBroadcaster = "broadcaster"
	TokenRoleModerator   = "moderator"
	TokenRoleViewer      = "viewer"
	TokenRoleExternal    = "external"
)

// PubSubPerms lists the PubSub targets a token may use.
type PubSubPerms struct {
	Listen []string `json:"listen,omitempty"`
	Send   []string `json:"send,omitempty"`
}

// Claims is the payload of a Twitch extension JWT.
type Claims struct {
	ChannelID    string      `json:"channel_id" validate:"required"`
	OpaqueUserID string      `json:"opaque_user_id,omitempty"`
	UserID       string      `json:"user_id,omitempty"`
	Role         string      `json:"role" validate:"oneof=broadcaster moderator viewer external"`
	IsUnlinked   bool        `json:"is_unlinked,omitempty"`
	PubSubPerms  PubSubPerms `json:"pubsub_perms"`
	jwt.RegisteredClaims
}

// ID returns the Twitch user id when shared, else the opaque id.
func (c *Claims) ID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.OpaqueUserID
}

// VerifyToken checks an extension token signed with the shared secret.
// Only HS256 is accepted and an expiry is required.
func VerifyToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role == TokenRoleExternal {
		return nil, fmt.Errorf("%w: external tokens cannot join as viewers", ErrInvalidToken)
	}
	if err := validation.ValidateStruct(claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.OpaqueUserID == "" && claims.UserID == "" {
		return nil, fmt.Errorf("%w: no viewer identity", ErrInvalidToken)
	}
	return claims, nil
}
