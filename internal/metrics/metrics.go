// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection kinds used as the "kind" label.
const (
	KindSession = "session"
	KindChannel = "channel"
	KindViewer  = "viewer"
	KindUnknown = "unknown"
)

var (
	// Connections
	Connections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modvote_websocket_connections",
			Help: "Current number of websocket connections by kind",
		},
		[]string{"kind"},
	)

	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modvote_messages_received_total",
			Help: "Inbound protocol messages by type",
		},
		[]string{"type"},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modvote_messages_sent_total",
			Help: "Outbound protocol messages by type",
		},
		[]string{"type"},
	)

	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modvote_messages_rejected_total",
			Help: "Inbound messages dropped before handling, by reason",
		},
		[]string{"reason"}, // "malformed", "unknown_type", "unauthorized", "closed"
	)

	FramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modvote_frames_dropped_total",
			Help: "Outbound frames dropped because the recipient queue was full",
		},
	)

	// Polls
	PollsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modvote_polls_started_total",
			Help: "Polls accepted by the aggregator",
		},
	)

	PollsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modvote_polls_finished_total",
			Help: "Finished polls by outcome",
		},
		[]string{"outcome"}, // "modification", "nothing", "no_votes", "error", "canceled"
	)

	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "modvote_poll_duration_seconds",
			Help:    "Wall-clock duration of completed polls",
			Buckets: []float64{30, 45, 60, 90, 120, 180, 300, 600},
		},
	)

	Votes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modvote_votes_total",
			Help: "Vote messages by result",
		},
		[]string{"result"}, // "accepted", "throttled", "invalid"
	)

	// Hub to aggregator link
	AggregatorLinkUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modvote_aggregator_link_up",
			Help: "1 while the hub holds a connection to the aggregator",
		},
	)

	AggregatorReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modvote_aggregator_reconnects_total",
			Help: "Dial attempts made by the hub after the first",
		},
	)

	// Twitch API
	TwitchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modvote_twitch_requests_total",
			Help: "Twitch API calls by endpoint and result",
		},
		[]string{"endpoint", "result"},
	)

	TwitchRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modvote_twitch_request_duration_seconds",
			Help:    "Twitch API call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	PubSubFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modvote_pubsub_fallbacks_total",
			Help: "Viewer broadcasts delivered per socket instead of PubSub",
		},
		[]string{"reason"}, // "size", "error"
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modvote_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modvote_circuit_breaker_transitions_total",
			Help: "Circuit breaker state changes",
		},
		[]string{"name", "from", "to"},
	)

	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modvote_http_requests_total",
			Help: "HTTP requests by method, route pattern and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modvote_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// RecordTwitchRequest records one Twitch API call.
func RecordTwitchRequest(endpoint string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	TwitchRequests.WithLabelValues(endpoint, result).Inc()
	TwitchRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordHTTPRequest records one HTTP request.
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// TrackConnection adjusts the connection gauge for kind.
func TrackConnection(kind string, open bool) {
	if open {
		Connections.WithLabelValues(kind).Inc()
	} else {
		Connections.WithLabelValues(kind).Dec()
	}
}
