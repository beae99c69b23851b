// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics

// Drop reasons.
const (
	ReasonOverflow = "overflow"
	ReasonExpired  = "expired"
)

// Collector wraps metrics and provides helper methods with pre-filled labels.
type Collector struct {
	broker string
}

// NewCollector creates a new Collector for the given broker name.
func NewCollector(broker string) *Collector {
	return &Collector{broker: broker}
}

// Broker returns the broker label value.
func (c *Collector) Broker() string {
	return c.broker
}

// IncRequests increments the accepted requests counter for a service.
func (c *Collector) IncRequests(service string) {
	RequestsTotal.WithLabelValues(c.broker, service).Inc()
}

// IncDispatched increments the dispatched requests counter for a service.
func (c *Collector) IncDispatched(service string) {
	DispatchedTotal.WithLabelValues(c.broker, service).Inc()
}

// IncReplies increments the relayed replies counter for a service.
func (c *Collector) IncReplies(service string) {
	RepliesTotal.WithLabelValues(c.broker, service).Inc()
}

// IncDropped increments the dropped requests counter.
func (c *Collector) IncDropped(reason string) {
	DroppedTotal.WithLabelValues(c.broker, reason).Inc()
}

// IncMalformed increments the malformed messages counter.
func (c *Collector) IncMalformed() {
	MalformedTotal.WithLabelValues(c.broker).Inc()
}

// IncWorkersRegistered increments the registered workers counter.
func (c *Collector) IncWorkersRegistered() {
	WorkersRegisteredTotal.WithLabelValues(c.broker).Inc()
}

// IncWorkersPurged increments the purged workers counter.
func (c *Collector) IncWorkersPurged() {
	WorkersPurgedTotal.WithLabelValues(c.broker).Inc()
}

// IncViolations increments the protocol violations counter.
func (c *Collector) IncViolations() {
	ViolationsTotal.WithLabelValues(c.broker).Inc()
}

// AddHeartbeats adds n to the heartbeats sent counter.
func (c *Collector) AddHeartbeats(n int) {
	HeartbeatsTotal.WithLabelValues(c.broker).Add(float64(n))
}

// SetWorkers sets the known workers gauge.
func (c *Collector) SetWorkers(count int) {
	Workers.WithLabelValues(c.broker).Set(float64(count))
}

// SetQueued sets the pending requests gauge for a service.
func (c *Collector) SetQueued(service string, count int) {
	QueuedRequests.WithLabelValues(c.broker, service).Set(float64(count))
}
