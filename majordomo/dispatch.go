// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"time"

	"github.com/destiny/mdbroker/internal/metrics"
)

// markIdle puts a worker at the tail of its service's waiting list and into
// the expiry queue, then tries to hand it a request.
func (b *Broker) markIdle(worker *BrokerWorker, now time.Time) {
	svc, ok := b.services[worker.Service]
	if !ok {
		return
	}

	svc.removeWaiting(worker.key())
	worker.Expiry = now.Add(b.heartbeatExpiry)
	svc.waiting = append(svc.waiting, worker.key())
	b.waiting.add(worker)

	b.match(svc)
}

// enqueue appends a request to the service queue, applying the queue bound.
func (b *Broker) enqueue(svc *Service, req *request) {
	if limit := b.options.MaxQueue; limit > 0 && len(svc.requests) >= limit {
		switch b.options.Overflow {
		case OverflowDropOldest:
			svc.popRequest()
			b.log.Warn().Str("service", svc.Name.String()).Int("limit", limit).Msg("queue full, dropped oldest request")
		default:
			b.log.Warn().Str("service", svc.Name.String()).Int("limit", limit).Msg("queue full, rejected request")
			b.metrics.IncDropped(metrics.ReasonOverflow)
			return
		}
		b.metrics.IncDropped(metrics.ReasonOverflow)
	}

	svc.requests = append(svc.requests, req)
	b.metrics.IncRequests(svc.Name.String())
	b.match(svc)
}

// match sends queued requests to idle workers, oldest of each first, until
// one of the two queues runs out.
func (b *Broker) match(svc *Service) {
	for len(svc.waiting) > 0 && len(svc.requests) > 0 {
		key := svc.waiting[0]
		svc.waiting = svc.waiting[1:]

		worker, ok := b.workers[key]
		if !ok {
			continue
		}
		b.waiting.remove(worker)

		req := svc.popRequest()
		b.send(encodeWorker(worker.Address, CommandRequest, req.frames()...))
		b.metrics.IncDispatched(svc.Name.String())
	}
	b.metrics.SetQueued(svc.Name.String(), len(svc.requests))
}
