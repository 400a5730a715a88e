// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

/*
Package twitch talks to the Twitch identity service and the Helix API on
behalf of the aggregator.

Operations:
  - Authorize: OAuth2 authorization code exchange through a zitadel/oidc
    relying party in OAuth2-only mode, followed by a scope check and the
    channel lookup. The token is revoked when any later step fails.
  - IsSubscriber: Helix subscription check, cached per broadcaster and user
    and de-duplicated with singleflight so a burst of viewers joining a
    channel costs one request per user.
  - SendPubSub: extension PubSub broadcast signed with an HS256 JWT derived
    from the extension secret.
  - Revoke: token revocation when a channel disconnects.

Every HTTP call goes through a sony/gobreaker circuit breaker. Server
errors and transport failures count against the breaker; 4xx responses do
not, since they describe the request rather than Twitch's health.
*/
package twitch
