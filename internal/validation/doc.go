// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

// Package validation wraps go-playground/validator for inbound protocol
// messages. Field names in errors use the JSON names seen on the wire.
package validation
