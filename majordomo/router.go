// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"time"
)

// processClient handles a request from a client
func (b *Broker) processClient(sender []byte, service ServiceName, body [][]byte, now time.Time) {
	envelope := [][]byte{sender, {}}

	if service.IsInternal() {
		b.serviceInternal(service, envelope, body)
		return
	}

	b.enqueue(b.requireService(service), &request{
		envelope: envelope,
		body:     body,
		queued:   now,
	})
}

// processWorker handles a command from a worker
func (b *Broker) processWorker(sender []byte, cmd Command, frames [][]byte, now time.Time) {
	if cmd == CommandRequest {
		b.log.Warn().Str("worker", printable(sender)).Msg("dropping REQUEST sent by worker")
		return
	}

	_, known := b.workers[string(sender)]
	worker := b.requireWorker(sender)
	log := b.log.With().Str("worker", worker.Identity).Str("command", cmd.String()).Logger()

	switch cmd {
	case CommandReady:
		if known {
			log.Warn().Msg("READY from registered worker")
			b.violation(worker)
			return
		}
		if len(frames) < 1 {
			log.Warn().Msg("READY without service name")
			b.violation(worker)
			return
		}
		name := ServiceName(frames[0])
		if err := name.Validate(); err != nil {
			log.Warn().Err(err).Msg("READY with invalid service name")
			b.violation(worker)
			return
		}
		if name.IsInternal() {
			log.Warn().Str("service", name.String()).Msg("READY for reserved service")
			b.violation(worker)
			return
		}

		svc := b.requireService(name)
		worker.Service = name
		svc.workers++
		b.metrics.IncWorkersRegistered()
		log.Debug().Str("service", name.String()).Msg("worker registered")
		b.markIdle(worker, now)

	case CommandReply:
		if !known || worker.Service == "" || worker.Idle() {
			log.Warn().Msg("REPLY from worker with no request outstanding")
			b.violation(worker)
			return
		}
		if len(frames) < 2 || len(frames[1]) != 0 {
			log.Warn().Int("frames", len(frames)).Msg("REPLY without client envelope")
			b.violation(worker)
			return
		}
		b.send(encodeClient(frames[0], worker.Service, frames[2:]...))
		b.metrics.IncReplies(worker.Service.String())
		b.markIdle(worker, now)

	case CommandHeartbeat:
		if !known {
			log.Debug().Msg("HEARTBEAT from unknown worker")
			b.deleteWorker(worker, true)
			return
		}
		worker.Expiry = now.Add(b.heartbeatExpiry)
		b.waiting.fix(worker)

	case CommandDisconnect:
		log.Debug().Msg("worker disconnected")
		b.deleteWorker(worker, false)
	}
}

// violation disconnects a worker that broke the protocol.
func (b *Broker) violation(worker *BrokerWorker) {
	b.metrics.IncViolations()
	b.deleteWorker(worker, true)
}

// requireWorker finds the worker for an address, creating it if necessary.
func (b *Broker) requireWorker(address []byte) *BrokerWorker {
	key := string(address)
	if worker, ok := b.workers[key]; ok {
		return worker
	}

	worker := &BrokerWorker{
		Identity: printable(address),
		Address:  append([]byte(nil), address...),
		index:    -1,
	}
	b.workers[key] = worker
	b.metrics.SetWorkers(len(b.workers))
	b.log.Debug().Str("worker", worker.Identity).Msg("registering new worker")
	return worker
}

// deleteWorker removes a worker from every queue and the worker table,
// optionally telling it to disconnect first.
func (b *Broker) deleteWorker(worker *BrokerWorker, disconnect bool) {
	if disconnect {
		b.send(encodeWorker(worker.Address, CommandDisconnect))
	}

	b.waiting.remove(worker)
	if worker.Service != "" {
		if svc, ok := b.services[worker.Service]; ok {
			svc.removeWaiting(worker.key())
			svc.workers--
		}
	}

	delete(b.workers, worker.key())
	b.metrics.SetWorkers(len(b.workers))
}

// requireService finds the service by name, creating it if necessary.
func (b *Broker) requireService(name ServiceName) *Service {
	if svc, ok := b.services[name]; ok {
		return svc
	}
	svc := newService(name)
	b.services[name] = svc
	b.log.Debug().Str("service", name.String()).Msg("added service")
	return svc
}
