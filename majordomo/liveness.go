// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"time"

	"github.com/destiny/mdbroker/internal/metrics"
)

// heartbeatTick sends HEARTBEAT to every known worker once per interval.
func (b *Broker) heartbeatTick(now time.Time) {
	if now.Before(b.heartbeatAt) {
		return
	}
	for _, worker := range b.workers {
		b.send(encodeWorker(worker.Address, CommandHeartbeat))
	}
	b.metrics.AddHeartbeats(len(b.workers))
	b.heartbeatAt = now.Add(b.heartbeatInterval)
}

// purgeExpired deletes idle workers whose expiry has passed. Nothing is
// sent to them.
func (b *Broker) purgeExpired(now time.Time) {
	for {
		worker := b.waiting.peek()
		if worker == nil || worker.Expiry.After(now) {
			return
		}
		b.log.Debug().Str("worker", worker.Identity).Str("service", worker.Service.String()).
			Msg("deleting expired worker")
		b.deleteWorker(worker, false)
		b.metrics.IncWorkersPurged()
	}
}

// expireRequests drops queued requests older than RequestTTL.
func (b *Broker) expireRequests(now time.Time) {
	ttl := b.options.RequestTTL
	if ttl <= 0 {
		return
	}
	for _, svc := range b.services {
		dropped := 0
		for len(svc.requests) > 0 && !now.Before(svc.requests[0].queued.Add(ttl)) {
			svc.popRequest()
			b.metrics.IncDropped(metrics.ReasonExpired)
			dropped++
		}
		if dropped > 0 {
			b.log.Debug().Str("service", svc.Name.String()).Int("dropped", dropped).Msg("expired queued requests")
			b.metrics.SetQueued(svc.Name.String(), len(svc.requests))
		}
	}
}
