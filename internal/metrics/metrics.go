// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

// Package metrics exposes Prometheus instrumentation for the layout
// engine, the REST API and the websocket push transport. All collectors
// register on the default registry and are served from /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Layout engine metrics.
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layout_evaluations_total",
			Help: "Total number of layout evaluations",
		},
		[]string{"trigger", "outcome"}, // trigger: transaction, devices, clock, simulate
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "layout_evaluation_duration_seconds",
			Help:    "Duration of one layout evaluation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	ComponentsPlaced = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "layout_components_placed",
			Help:    "Components placed per evaluation",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)

	NotPlacedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layout_not_placed_total",
			Help: "Components left out of layouts, by status",
		},
		[]string{"status"}, // noDevice, incompatible, skipped, noDependent
	)

	DiffMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layout_diff_messages_total",
			Help: "Differential messages produced, by type",
		},
		[]string{"type"}, // create, update, destroy
	)

	ActiveContexts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "layout_active_contexts",
			Help: "Currently existing contexts",
		},
	)

	// API metrics.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	// Websocket metrics.
	WSConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connected_clients",
			Help: "Currently connected websocket clients",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Messages pushed to websocket clients",
		},
	)

	WSSendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_send_failures_total",
			Help: "Messages dropped because a client could not keep up",
		},
	)
)

// ObserveEvaluation records one engine evaluation.
func ObserveEvaluation(trigger string, err error, duration time.Duration, placed int) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	EvaluationsTotal.WithLabelValues(trigger, outcome).Inc()
	if err == nil {
		EvaluationDuration.Observe(duration.Seconds())
		ComponentsPlaced.Observe(float64(placed))
	}
}

// RecordAPIRequest records one finished HTTP request.
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
