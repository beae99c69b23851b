// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("test-coll-1")
	assert.Equal(t, "test-coll-1", c.Broker())

	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("test-coll-1", "echo"))
	c.IncRequests("echo")
	assert.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("test-coll-1", "echo")))

	before = testutil.ToFloat64(DispatchedTotal.WithLabelValues("test-coll-1", "echo"))
	c.IncDispatched("echo")
	assert.Equal(t, before+1, testutil.ToFloat64(DispatchedTotal.WithLabelValues("test-coll-1", "echo")))

	before = testutil.ToFloat64(RepliesTotal.WithLabelValues("test-coll-1", "echo"))
	c.IncReplies("echo")
	assert.Equal(t, before+1, testutil.ToFloat64(RepliesTotal.WithLabelValues("test-coll-1", "echo")))

	before = testutil.ToFloat64(DroppedTotal.WithLabelValues("test-coll-1", ReasonOverflow))
	c.IncDropped(ReasonOverflow)
	assert.Equal(t, before+1, testutil.ToFloat64(DroppedTotal.WithLabelValues("test-coll-1", ReasonOverflow)))

	before = testutil.ToFloat64(HeartbeatsTotal.WithLabelValues("test-coll-1"))
	c.AddHeartbeats(3)
	assert.Equal(t, before+3, testutil.ToFloat64(HeartbeatsTotal.WithLabelValues("test-coll-1")))
}

func TestCollector_WorkerCounters(t *testing.T) {
	c := NewCollector("test-coll-2")

	before := testutil.ToFloat64(WorkersRegisteredTotal.WithLabelValues("test-coll-2"))
	c.IncWorkersRegistered()
	assert.Equal(t, before+1, testutil.ToFloat64(WorkersRegisteredTotal.WithLabelValues("test-coll-2")))

	before = testutil.ToFloat64(WorkersPurgedTotal.WithLabelValues("test-coll-2"))
	c.IncWorkersPurged()
	assert.Equal(t, before+1, testutil.ToFloat64(WorkersPurgedTotal.WithLabelValues("test-coll-2")))

	before = testutil.ToFloat64(ViolationsTotal.WithLabelValues("test-coll-2"))
	c.IncViolations()
	assert.Equal(t, before+1, testutil.ToFloat64(ViolationsTotal.WithLabelValues("test-coll-2")))

	before = testutil.ToFloat64(MalformedTotal.WithLabelValues("test-coll-2"))
	c.IncMalformed()
	assert.Equal(t, before+1, testutil.ToFloat64(MalformedTotal.WithLabelValues("test-coll-2")))
}

func TestCollector_Gauges(t *testing.T) {
	c := NewCollector("test-coll-3")

	c.SetWorkers(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(Workers.WithLabelValues("test-coll-3")))

	c.SetQueued("echo", 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(QueuedRequests.WithLabelValues("test-coll-3", "echo")))
	c.SetQueued("echo", 0)
	assert.Equal(t, float64(0), testutil.ToFloat64(QueuedRequests.WithLabelValues("test-coll-3", "echo")))
}
