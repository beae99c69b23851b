// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/destiny/mdbroker/internal/logging"
)

var (
	// ErrBrokerOffline is returned by a worker session that stopped hearing
	// from the broker for a full liveness window.
	ErrBrokerOffline = errors.New("mdp: broker offline")
	// ErrBrokerDisconnect is returned by a worker session the broker
	// told to disconnect.
	ErrBrokerDisconnect = errors.New("mdp: disconnected by broker")
)

// RequestHandler processes the body of one request and returns the reply body.
// A handler error is sent back to the client as a single "Error: ..." frame.
type RequestHandler func(ctx context.Context, request [][]byte) ([][]byte, error)

// WorkerOptions configures MDP worker behavior
type WorkerOptions struct {
	HeartbeatLiveness int             // Heartbeat liveness factor
	HeartbeatInterval time.Duration   // Heartbeat interval
	ReconnectInterval time.Duration   // Reconnection interval
	Logger            *zerolog.Logger // nil logs at warn level to stderr
	Verbose           bool            // Log every command sent and received
}

// DefaultWorkerOptions returns default worker options
func DefaultWorkerOptions() *WorkerOptions {
	return &WorkerOptions{
		HeartbeatLiveness: DefaultHeartbeatLiveness,
		HeartbeatInterval: DefaultHeartbeatInterval,
		ReconnectInterval: 2500 * time.Millisecond,
	}
}

// WorkerStats counts what a worker has done since it was created.
type WorkerStats struct {
	Requests   uint64 `json:"requests"`
	Replies    uint64 `json:"replies"`
	Errors     uint64 `json:"errors"`
	Reconnects uint64 `json:"reconnects"`
	Connected  bool   `json:"connected"`
}

// Worker implements the MDP worker
type Worker struct {
	// Configuration
	service        ServiceName
	brokerEndpoint string
	options        *WorkerOptions
	handler        RequestHandler
	log            zerolog.Logger

	// Lifecycle for Start and Stop
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	runErr error

	// Statistics
	connected  atomic.Bool
	requests   atomic.Uint64
	replies    atomic.Uint64
	failures   atomic.Uint64
	reconnects atomic.Uint64
}

// NewWorker creates a new MDP worker
func NewWorker(service ServiceName, brokerEndpoint string, handler RequestHandler, options *WorkerOptions) (*Worker, error) {
	if err := service.Validate(); err != nil {
		return nil, fmt.Errorf("mdp: %w", err)
	}
	if service.IsInternal() {
		return nil, fmt.Errorf("mdp: service name %q is reserved", service)
	}
	if handler == nil {
		return nil, fmt.Errorf("mdp: request handler cannot be nil")
	}

	if options == nil {
		options = DefaultWorkerOptions()
	}
	if options.HeartbeatInterval <= 0 {
		options.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if options.HeartbeatLiveness <= 0 {
		options.HeartbeatLiveness = DefaultHeartbeatLiveness
	}
	if options.ReconnectInterval <= 0 {
		options.ReconnectInterval = options.HeartbeatInterval
	}

	var log zerolog.Logger
	if options.Logger != nil {
		log = *options.Logger
	} else {
		level := logging.LevelWarn
		if options.Verbose {
			level = logging.LevelDebug
		}
		log = logging.New(os.Stderr, level)
	}

	return &Worker{
		service:        service,
		brokerEndpoint: brokerEndpoint,
		options:        options,
		handler:        handler,
		log:            log.With().Str("service", service.String()).Str("broker", brokerEndpoint).Logger(),
	}, nil
}

// Run connects to the broker and serves requests until ctx is canceled,
// reconnecting after every lost session. On cancel the worker sends
// DISCONNECT before closing its socket.
func (w *Worker) Run(ctx context.Context) error {
	for {
		err := w.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		w.reconnects.Add(1)
		w.log.Warn().Err(err).Dur("retry", w.options.ReconnectInterval).Msg("lost broker, reconnecting")

		timer := time.NewTimer(w.options.ReconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Start runs the worker in the background until Stop.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return fmt.Errorf("mdp: worker already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		w.runErr = w.Run(ctx)
	}()
	return nil
}

// Stop disconnects from the broker and waits for the worker to exit.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return fmt.Errorf("mdp: worker not running")
	}
	w.cancel()
	<-w.done
	w.cancel = nil
	return w.runErr
}

// session is one connection to the broker, from READY to loss or cancel.
func (w *Worker) session(ctx context.Context) error {
	sctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	socket := zmq4.NewDealer(sctx,
		zmq4.WithID(zmq4.SocketIdentity(uuid.NewString())),
		zmq4.WithLogger(stdlog.New(w.log, "", 0)),
	)
	if err := socket.Dial(w.brokerEndpoint); err != nil {
		socket.Close()
		return fmt.Errorf("mdp: failed to connect to broker: %w", err)
	}
	if err := w.send(socket, CommandReady, []byte(w.service)); err != nil {
		socket.Close()
		return err
	}
	w.connected.Store(true)
	defer w.connected.Store(false)
	w.log.Info().Msg("connected to broker")

	inbound := make(chan zmq4.Msg)
	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error {
		for {
			msg, err := socket.Recv()
			if err != nil {
				return err
			}
			select {
			case inbound <- msg:
			case <-gctx.Done():
				return nil
			}
		}
	})

	err := w.serve(ctx, gctx, socket, inbound)
	cancel()
	socket.Close()
	if gerr := g.Wait(); err == nil && ctx.Err() == nil {
		err = fmt.Errorf("mdp: worker receive: %w", gerr)
	}
	return err
}

// serve handles broker commands and sends heartbeats. Liveness drops by one
// every interval without traffic from the broker.
func (w *Worker) serve(ctx, sctx context.Context, socket zmq4.Socket, inbound <-chan zmq4.Msg) error {
	liveness := w.options.HeartbeatLiveness
	ticker := time.NewTicker(w.options.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := w.send(socket, CommandDisconnect); err != nil {
				w.log.Debug().Err(err).Msg("DISCONNECT not delivered")
			}
			return nil

		case <-sctx.Done():
			return nil

		case msg := <-inbound:
			liveness = w.options.HeartbeatLiveness
			if err := w.process(ctx, socket, msg.Frames); err != nil {
				return err
			}

		case <-ticker.C:
			liveness--
			if liveness <= 0 {
				return ErrBrokerOffline
			}
			if err := w.send(socket, CommandHeartbeat); err != nil {
				return err
			}
		}
	}
}

// process handles one message from the broker.
func (w *Worker) process(ctx context.Context, socket zmq4.Socket, frames [][]byte) error {
	if w.options.Verbose {
		w.log.Debug().Int("frames", len(frames)).Msg("received message from broker")
	}

	msg, err := decodeProtocol(frames)
	if err != nil || msg.Header != HeaderWorker {
		w.log.Warn().Err(err).Int("frames", len(frames)).Msg("invalid message from broker")
		return nil
	}

	switch msg.Command {
	case CommandRequest:
		return w.processRequest(ctx, socket, msg.Body)
	case CommandHeartbeat:
		// liveness already reset
	case CommandDisconnect:
		return ErrBrokerDisconnect
	default:
		w.log.Warn().Str("command", msg.Command.String()).Msg("unexpected command from broker")
	}
	return nil
}

// processRequest runs the handler and sends exactly one REPLY.
func (w *Worker) processRequest(ctx context.Context, socket zmq4.Socket, frames [][]byte) error {
	if len(frames) < 2 || len(frames[0]) == 0 || len(frames[1]) != 0 {
		w.log.Warn().Int("frames", len(frames)).Msg("REQUEST without client envelope")
		return nil
	}
	client, body := frames[0], frames[2:]
	w.requests.Add(1)

	reply, err := w.handler(ctx, body)
	if err != nil {
		w.failures.Add(1)
		w.log.Warn().Err(err).Msg("request handler error")
		reply = [][]byte{[]byte(fmt.Sprintf("Error: %v", err))}
	}

	out := make([][]byte, 0, len(reply)+2)
	out = append(out, client, []byte{})
	out = append(out, reply...)
	if err := w.send(socket, CommandReply, out...); err != nil {
		return err
	}
	w.replies.Add(1)
	return nil
}

func (w *Worker) send(socket zmq4.Socket, cmd Command, frames ...[]byte) error {
	if w.options.Verbose {
		w.log.Debug().Str("command", cmd.String()).Msg("sending to broker")
	}
	if err := socket.Send(zmq4.NewMsgFrom(encodeWorker(nil, cmd, frames...)...)); err != nil {
		return fmt.Errorf("mdp: failed to send %s to broker: %w", cmd, err)
	}
	return nil
}

// Stats returns worker statistics
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Requests:   w.requests.Load(),
		Replies:    w.replies.Load(),
		Errors:     w.failures.Load(),
		Reconnects: w.reconnects.Load(),
		Connected:  w.connected.Load(),
	}
}

// Service returns the service name this worker serves
func (w *Worker) Service() ServiceName {
	return w.service
}

// IsConnected returns whether the worker is connected to the broker
func (w *Worker) IsConnected() bool {
	return w.connected.Load()
}
