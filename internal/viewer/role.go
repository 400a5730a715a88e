// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package viewer

import (
	"context"
	"strings"

	"github.com/tomtom215/modvote/internal/protocol"
)

// Role is a viewer's standing in a channel. Higher values include lower ones.
type Role int

const (
	RoleAnonymous Role = iota
	RoleUnlinked
	RoleLinked
	RoleSubscriber
	RoleModerator
	RoleBroadcaster
)

var roleNames = [...]string{
	RoleAnonymous:   "anonymous",
	RoleUnlinked:    "unlinked",
	RoleLinked:      "linked",
	RoleSubscriber:  "subscriber",
	RoleModerator:   "moderator",
	RoleBroadcaster: "broadcaster",
}

// String returns the name used in the Role message.
func (r Role) String() string {
	if r < RoleAnonymous || r > RoleBroadcaster {
		return roleNames[RoleAnonymous]
	}
	return roleNames[r]
}

// MinimumRole maps a participant setting to the lowest role that may vote.
// Unknown values admit everyone.
func MinimumRole(p protocol.Participants) Role {
	switch p {
	case protocol.ParticipantsLoggedIn:
		return RoleUnlinked
	case protocol.ParticipantsSubscribers:
		return RoleSubscriber
	default:
		return RoleAnonymous
	}
}

// SubscriptionChecker reports whether a user subscribes to the channel it
// was created for.
type SubscriptionChecker interface {
	IsSubscriber(ctx context.Context, userID string) (bool, error)
}

// ResolveRole derives the role from verified claims. subs is nil when the
// viewer's channel is not connected; a failed check counts as not
// subscribed.
func ResolveRole(ctx context.Context, claims *Claims, subs SubscriptionChecker) Role {
	switch claims.Role {
	case TokenRoleBroadcaster:
		return RoleBroadcaster
	case TokenRoleModerator:
		return RoleModerator
	}

	if claims.UserID == "" {
		if strings.HasPrefix(claims.OpaqueUserID, "U") {
			return RoleUnlinked
		}
		return RoleAnonymous
	}

	if subs != nil {
		if ok, err := subs.IsSubscriber(ctx, claims.UserID); err == nil && ok {
			return RoleSubscriber
		}
	}
	return RoleLinked
}
