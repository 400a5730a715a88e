// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

/*
Package registry keeps the modification catalogue of the hub.

Two kinds of state live here:

  - Persisted state in BadgerDB: one PersistedProvider per provider id with
    the streamer's customisations (enabled flag, length bounds, description,
    tooltip and option values), and a single GlobalSettings record with the
    interface texts and poll settings.
  - Live state in memory: one ProviderState per connected provider with the
    session that owns it, its last registration message and the sets of
    initialized and running modifications.

Registry combines both and builds the derived views sent over the wire:
Info.Open modification lists, Config.Available snapshots and
Client.Initialize messages.

# Length Bounds

Every operation maintains

	0 <= CustomMin <= CustomMax <= min(DeclaredMax, 120)

A new modification starts at [0, min(declared or 120, 120)] and disabled.
Re-registration clamps the stored bounds into the newly declared range.

# Public IDs

Modifications are addressed across the system as "providerId|name". The
separator is forbidden in provider ids so the first "|" always splits
correctly; see PublicID and ParsePublicID.
*/
package registry
