// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exposes Prometheus metrics for the Majordomo broker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RequestsTotal tracks client requests accepted per service.
var RequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mdbroker_requests_total",
		Help: "Total client requests accepted",
	},
	[]string{"broker", "service"},
)

// DispatchedTotal tracks requests handed to a worker.
var DispatchedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mdbroker_dispatched_total",
		Help: "Total requests dispatched to workers",
	},
	[]string{"broker", "service"},
)

// RepliesTotal tracks worker replies relayed to clients.
var RepliesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mdbroker_replies_total",
		Help: "Total replies relayed to clients",
	},
	[]string{"broker", "service"},
)

// DroppedTotal tracks requests dropped by the broker, by reason.
var DroppedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mdbroker_dropped_requests_total",
		Help: "Total requests dropped (overflow, expired)",
	},
	[]string{"broker", "reason"},
)

// MalformedTotal tracks inbound messages dropped by the codec.
var MalformedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mdbroker_malformed_messages_total",
		Help: "Total malformed inbound messages",
	},
	[]string{"broker"},
)

// WorkersRegisteredTotal tracks successful READY registrations.
var WorkersRegisteredTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mdbroker_workers_registered_total",
		Help: "Total workers registered",
	},
	[]string{"broker"},
)

// WorkersPurgedTotal tracks workers removed after their expiry.
var WorkersPurgedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mdbroker_workers_purged_total",
		Help: "Total workers purged after missing heartbeats",
	},
	[]string{"broker"},
)

// ViolationsTotal tracks workers disconnected for protocol violations.
var ViolationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mdbroker_protocol_violations_total",
		Help: "Total workers disconnected for protocol violations",
	},
	[]string{"broker"},
)

// HeartbeatsTotal tracks HEARTBEAT commands sent to workers.
var HeartbeatsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mdbroker_heartbeats_sent_total",
		Help: "Total heartbeats sent to workers",
	},
	[]string{"broker"},
)

// Workers tracks the current size of the worker table.
var Workers = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "mdbroker_workers",
		Help: "Current known workers",
	},
	[]string{"broker"},
)

// QueuedRequests tracks pending requests per service.
var QueuedRequests = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "mdbroker_queued_requests",
		Help: "Current pending requests per service",
	},
	[]string{"broker", "service"},
)
