// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package api

import (
	"net/http"
	"time"
)

// Health is the payload of GET /healthz.
type Health struct {
	Status     string                 `json:"status"`
	Uptime     float64                `json:"uptime_seconds"`
	Components map[string]interface{} `json:"components,omitempty"`
}

// HealthFunc reports component state. A process that is up but missing
// a dependency reports healthy false and is shown as degraded.
type HealthFunc func() (components map[string]interface{}, healthy bool)

func healthHandler(started time.Time, check HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := Health{
			Status: "healthy",
			Uptime: time.Since(started).Seconds(),
		}
		if check != nil {
			components, ok := check()
			health.Components = components
			if !ok {
				health.Status = "degraded"
			}
		}
		WriteSuccess(w, r, health)
	}
}
