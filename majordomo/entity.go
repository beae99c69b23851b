// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import "time"

// BrokerWorker represents a connected worker from the broker's perspective
type BrokerWorker struct {
	Identity string      // printable form of Address
	Address  []byte      // routing frame, key of the worker table
	Service  ServiceName // empty until READY
	Expiry   time.Time   // dead after this instant absent a heartbeat

	// position in the broker's expiry queue, -1 while busy or unregistered
	index int
}

func (w *BrokerWorker) key() string {
	return string(w.Address)
}

// Idle reports whether the worker is waiting for a request.
func (w *BrokerWorker) Idle() bool {
	return w.index >= 0
}

// request is a queued client request with its return envelope.
type request struct {
	envelope [][]byte // [client-address, ""]
	body     [][]byte
	queued   time.Time
}

func (r *request) frames() [][]byte {
	out := make([][]byte, 0, len(r.envelope)+len(r.body))
	out = append(out, r.envelope...)
	return append(out, r.body...)
}

// Service represents a service with its request and idle worker queues
type Service struct {
	Name ServiceName

	requests []*request
	waiting  []string // worker table keys, oldest idle first
	workers  int      // workers registered for this service, idle or busy
}

func newService(name ServiceName) *Service {
	return &Service{Name: name}
}

// Pending returns the number of queued requests.
func (s *Service) Pending() int { return len(s.requests) }

// Idle returns the number of idle workers.
func (s *Service) Idle() int { return len(s.waiting) }

// Workers returns the number of registered workers.
func (s *Service) Workers() int { return s.workers }

func (s *Service) removeWaiting(key string) bool {
	for i, k := range s.waiting {
		if k == key {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Service) popRequest() *request {
	req := s.requests[0]
	s.requests[0] = nil
	s.requests = s.requests[1:]
	return req
}
