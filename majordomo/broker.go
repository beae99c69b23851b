// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/destiny/mdbroker/internal/logging"
	"github.com/destiny/mdbroker/internal/metrics"
)

// ErrBrokerClosed is returned by broker operations after Close.
var ErrBrokerClosed = errors.New("mdp: broker closed")

// OverflowPolicy decides what happens to a request arriving at a full queue.
type OverflowPolicy int

const (
	// OverflowRejectNew drops the incoming request.
	OverflowRejectNew OverflowPolicy = iota
	// OverflowDropOldest drops the oldest queued request to make room.
	OverflowDropOldest
)

// String returns the policy name used in configuration files.
func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDropOldest:
		return "drop-oldest"
	default:
		return "reject-new"
	}
}

// ParseOverflowPolicy parses "reject-new" or "drop-oldest".
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "reject-new":
		return OverflowRejectNew, nil
	case "drop-oldest":
		return OverflowDropOldest, nil
	}
	return OverflowRejectNew, fmt.Errorf("mdp: unknown overflow policy %q", s)
}

// BrokerOptions configures MDP broker behavior
type BrokerOptions struct {
	HeartbeatLiveness int           // Heartbeat liveness factor
	HeartbeatInterval time.Duration // Heartbeat interval
	Verbose           bool          // Log and dump every frame sent and received

	Logger     *zerolog.Logger    // nil logs at info level to stderr
	DumpWriter io.Writer          // destination of verbose frame dumps, stderr if nil
	Metrics    *metrics.Collector // nil creates a collector labeled with the endpoint

	MaxQueue   int            // per-service request queue bound, 0 for unbounded
	Overflow   OverflowPolicy // applied when MaxQueue is reached
	RequestTTL time.Duration  // queued requests older than this are dropped, 0 disables
}

// DefaultBrokerOptions returns default broker options
func DefaultBrokerOptions() *BrokerOptions {
	return &BrokerOptions{
		HeartbeatLiveness: DefaultHeartbeatLiveness,
		HeartbeatInterval: DefaultHeartbeatInterval,
		Overflow:          OverflowRejectNew,
	}
}

// sender is the outbound half of the ROUTER socket.
type sender interface {
	Send(msg zmq4.Msg) error
}

// Broker implements the MDP broker.
//
// All broker state is owned by the goroutine running Run; other goroutines
// only reach it through Stats and Close.
type Broker struct {
	// Configuration
	endpoint          string
	heartbeatInterval time.Duration
	heartbeatExpiry   time.Duration
	options           *BrokerOptions
	log               zerolog.Logger
	dump              io.Writer
	metrics           *metrics.Collector
	now               func() time.Time

	// Networking
	socket zmq4.Socket
	out    sender
	ctx    context.Context
	cancel context.CancelFunc

	// State management
	services    map[ServiceName]*Service
	workers     map[string]*BrokerWorker // keyed by routing address
	waiting     expiryQueue              // idle workers, soonest expiry first
	heartbeatAt time.Time

	// Synchronization
	queries     chan chan Stats
	stop        chan struct{}
	done        chan struct{}
	lifecycle   sync.Mutex // guards running and the close of stop
	running     bool
	stopOnce    sync.Once
	destroyOnce sync.Once
	closeErr    error
}

// NewBroker creates a new MDP broker for the given endpoint.
// The socket is not bound until Bind or Run.
func NewBroker(endpoint string, options *BrokerOptions) *Broker {
	if options == nil {
		options = DefaultBrokerOptions()
	}
	if options.HeartbeatInterval <= 0 {
		options.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if options.HeartbeatLiveness <= 0 {
		options.HeartbeatLiveness = DefaultHeartbeatLiveness
	}

	var log zerolog.Logger
	if options.Logger != nil {
		log = *options.Logger
	} else {
		level := logging.LevelInfo
		if options.Verbose {
			level = logging.LevelDebug
		}
		log = logging.New(os.Stderr, level)
	}
	log = log.With().Str("endpoint", endpoint).Logger()

	dump := options.DumpWriter
	if dump == nil {
		dump = os.Stderr
	}

	collector := options.Metrics
	if collector == nil {
		collector = metrics.NewCollector(endpoint)
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now

	return &Broker{
		endpoint:          endpoint,
		heartbeatInterval: options.HeartbeatInterval,
		heartbeatExpiry:   options.HeartbeatInterval * time.Duration(options.HeartbeatLiveness),
		options:           options,
		log:               log,
		dump:              dump,
		metrics:           collector,
		now:               now,
		ctx:               ctx,
		cancel:            cancel,
		services:          make(map[ServiceName]*Service),
		workers:           make(map[string]*BrokerWorker),
		heartbeatAt:       now().Add(options.HeartbeatInterval),
		queries:           make(chan chan Stats),
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}
}

// Bind creates the ROUTER socket and listens on the broker endpoint.
// Bind may be called once, before Run.
func (b *Broker) Bind() error {
	if b.socket != nil {
		return fmt.Errorf("mdp: broker already bound to %s", b.endpoint)
	}

	socket := zmq4.NewRouter(b.ctx,
		zmq4.WithLogger(stdlog.New(b.log, "", 0)),
		zmq4.WithTimeout(b.heartbeatInterval),
	)
	if err := socket.Listen(b.endpoint); err != nil {
		socket.Close()
		return fmt.Errorf("mdp: failed to bind broker socket: %w", err)
	}

	b.socket = socket
	b.out = socket
	b.log.Info().Msg("MDP broker is active")
	return nil
}

// Addr returns the address the broker listens on, or nil before Bind.
func (b *Broker) Addr() net.Addr {
	if b.socket == nil {
		return nil
	}
	return b.socket.Addr()
}

// Run binds the socket if needed and mediates between clients and workers
// until ctx is canceled or Close is called. On return every known worker has
// been sent DISCONNECT and the socket is closed.
func (b *Broker) Run(ctx context.Context) error {
	b.lifecycle.Lock()
	select {
	case <-b.stop:
		b.lifecycle.Unlock()
		return ErrBrokerClosed
	default:
	}
	if b.running {
		b.lifecycle.Unlock()
		return fmt.Errorf("mdp: broker already running")
	}
	b.running = true
	b.lifecycle.Unlock()

	if b.socket == nil {
		if err := b.Bind(); err != nil {
			b.destroy()
			return err
		}
	}

	inbound := make(chan zmq4.Msg)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.receive(gctx, inbound)
	})
	g.Go(func() error {
		return b.mediate(gctx, inbound)
	})
	return g.Wait()
}

// receive pumps messages off the socket into the mediation loop.
func (b *Broker) receive(ctx context.Context, inbound chan<- zmq4.Msg) error {
	for {
		msg, err := b.socket.Recv()
		if err != nil {
			if ctx.Err() != nil || b.ctx.Err() != nil {
				return nil
			}
			b.log.Error().Err(err).Msg("receive failed")
			return fmt.Errorf("mdp: broker receive: %w", err)
		}
		select {
		case inbound <- msg:
		case <-ctx.Done():
			return nil
		case <-b.stop:
			// mediate returns without canceling ctx
			return nil
		case <-b.ctx.Done():
			return nil
		}
	}
}

// mediate is the broker process loop: wait for a message or the heartbeat
// interval, handle it, then run the liveness checks.
func (b *Broker) mediate(ctx context.Context, inbound <-chan zmq4.Msg) error {
	defer b.destroy()

	timer := time.NewTimer(b.heartbeatInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.stop:
			return nil
		case msg := <-inbound:
			b.handle(msg.Frames, b.now())
		case reply := <-b.queries:
			reply <- b.snapshot()
		case <-timer.C:
		}

		now := b.now()
		b.purgeExpired(now)
		b.expireRequests(now)
		b.heartbeatTick(now)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(b.heartbeatInterval)
	}
}

// handle decodes one inbound message and routes it.
func (b *Broker) handle(frames [][]byte, now time.Time) {
	if b.options.Verbose {
		b.log.Debug().Int("frames", len(frames)).Msg("received message")
		Dump(b.dump, frames)
	}

	msg, err := Decode(frames)
	if err != nil {
		b.log.Warn().Err(err).Int("frames", len(frames)).Msg("dropping invalid message")
		b.metrics.IncMalformed()
		return
	}

	switch msg.Header {
	case HeaderClient:
		b.processClient(msg.Sender, msg.Service, msg.Body, now)
	case HeaderWorker:
		b.processWorker(msg.Sender, msg.Command, msg.Body, now)
	}
}

// send writes one message to the socket. Failures are logged, never fatal.
func (b *Broker) send(frames [][]byte) {
	if b.options.Verbose {
		b.log.Debug().Int("frames", len(frames)).Msg("sending message")
		Dump(b.dump, frames)
	}
	if b.out == nil {
		return
	}
	if err := b.out.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		b.log.Warn().Err(err).Str("peer", printable(frames[0])).Msg("send failed")
	}
}

// Close disconnects every known worker and releases the socket.
// If Run is active, Close stops it and waits for it to return.
func (b *Broker) Close() error {
	b.lifecycle.Lock()
	b.stopOnce.Do(func() { close(b.stop) })
	running := b.running
	b.lifecycle.Unlock()

	if running {
		<-b.done
	} else {
		b.destroy()
	}
	return b.closeErr
}

func (b *Broker) destroy() {
	b.destroyOnce.Do(func() {
		for _, worker := range b.workers {
			b.deleteWorker(worker, true)
		}
		b.cancel()
		if b.socket != nil {
			b.closeErr = b.socket.Close()
		}
		close(b.done)
		b.log.Info().Msg("MDP broker stopped")
	})
}

// ServiceStats describes one service in a Stats snapshot.
type ServiceStats struct {
	Name    ServiceName `json:"name"`
	Workers int         `json:"workers"`
	Idle    int         `json:"idle"`
	Pending int         `json:"pending"`
}

// Stats is a point-in-time view of the broker state.
type Stats struct {
	Workers  int            `json:"workers"`
	Waiting  int            `json:"waiting"`
	Services []ServiceStats `json:"services"`
}

// Stats asks the running broker loop for a snapshot of its state.
func (b *Broker) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case b.queries <- reply:
	case <-b.done:
		return Stats{}, ErrBrokerClosed
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

func (b *Broker) snapshot() Stats {
	s := Stats{
		Workers:  len(b.workers),
		Waiting:  b.waiting.Len(),
		Services: make([]ServiceStats, 0, len(b.services)),
	}
	for _, svc := range b.services {
		s.Services = append(s.Services, ServiceStats{
			Name:    svc.Name,
			Workers: svc.Workers(),
			Idle:    svc.Idle(),
			Pending: svc.Pending(),
		})
	}
	sort.Slice(s.Services, func(i, j int) bool {
		return s.Services[i].Name < s.Services[j].Name
	})
	return s
}
