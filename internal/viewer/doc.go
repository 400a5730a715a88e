// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

/*
Package viewer holds the per-viewer state of the aggregator: the verified
extension token, the resolved role and the current ballot.

# Roles

Roles are ordered so that a poll's participant setting can be expressed as a
minimum role:

	Anonymous < Unlinked < Linked < Subscriber < Moderator < Broadcaster

A viewer with a Twitch user id is Linked, or Subscriber when the channel
reports a subscription. A viewer without a user id is Unlinked when the
opaque id starts with "U" (logged in, identity not shared) and Anonymous
otherwise.

# Ballots

A Ballot is a Vote plus an independent mode preference. Vote is a tagged
union of no vote, a modification vote with an optional duration, and a vote
for "no modification". Partial updates from the extension are merged with
Voter.Apply; Tally reads every ballot of a channel, optionally resetting
the votes while keeping mode preferences.

# Thread Safety

Voter is safe for concurrent use. The aggregator reads ballots from its
poll goroutine while the viewer's read pump applies updates.
*/
package viewer
