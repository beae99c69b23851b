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
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/destiny/mdbroker/internal/logging"
)

var (
	// ErrTimeout is returned when no reply arrived after every retry.
	ErrTimeout = errors.New("mdp: request timed out")
	// ErrNotConnected is returned by Request before Connect or after Disconnect.
	ErrNotConnected = errors.New("mdp: client not connected")
)

// ClientOptions configures MDP client behavior
type ClientOptions struct {
	Timeout time.Duration   // Per-attempt request timeout
	Retries int             // Attempts before giving up, at least 1
	Logger  *zerolog.Logger // nil logs at warn level to stderr
	Verbose bool            // Log every request and reply
}

// DefaultClientOptions returns default client options
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		Timeout: 2500 * time.Millisecond,
		Retries: 3,
	}
}

// Client implements the MDP client. Requests are synchronous: one request,
// one reply, with retries over a fresh connection after each timeout.
type Client struct {
	// Configuration
	brokerEndpoint string
	options        *ClientOptions
	log            zerolog.Logger

	// Networking, guarded by mu
	mu      sync.Mutex
	socket  zmq4.Socket
	replies chan zmq4.Msg
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Statistics, guarded by mu
	totalRequests uint64
	totalReplies  uint64
	totalTimeouts uint64
}

// NewClient creates a new MDP client
func NewClient(brokerEndpoint string, options *ClientOptions) *Client {
	if options == nil {
		options = DefaultClientOptions()
	}
	if options.Timeout <= 0 {
		options.Timeout = DefaultClientOptions().Timeout
	}
	if options.Retries <= 0 {
		options.Retries = 1
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

	return &Client{
		brokerEndpoint: brokerEndpoint,
		options:        options,
		log:            log.With().Str("broker", brokerEndpoint).Logger(),
	}
}

// Connect connects the client to the broker
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.socket != nil {
		return fmt.Errorf("mdp: client already connected")
	}
	return c.connect()
}

func (c *Client) connect() error {
	ctx, cancel := context.WithCancel(context.Background())
	socket := zmq4.NewDealer(ctx,
		zmq4.WithID(zmq4.SocketIdentity(uuid.NewString())),
		zmq4.WithLogger(stdlog.New(c.log, "", 0)),
	)
	if err := socket.Dial(c.brokerEndpoint); err != nil {
		cancel()
		socket.Close()
		return fmt.Errorf("mdp: failed to connect to broker: %w", err)
	}

	replies := make(chan zmq4.Msg, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			msg, err := socket.Recv()
			if err != nil {
				return
			}
			select {
			case replies <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	c.socket = socket
	c.replies = replies
	c.cancel = cancel
	c.log.Debug().Msg("connected to broker")
	return nil
}

func (c *Client) disconnect() error {
	if c.socket == nil {
		return nil
	}
	c.cancel()
	err := c.socket.Close()
	c.wg.Wait()
	c.socket = nil
	c.replies = nil
	return err
}

func (c *Client) reconnect() error {
	if err := c.disconnect(); err != nil {
		c.log.Debug().Err(err).Msg("close before reconnect")
	}
	return c.connect()
}

// Disconnect closes the connection to the broker
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.disconnect(); err != nil {
		return fmt.Errorf("mdp: failed to close client socket: %w", err)
	}
	return nil
}

// Request sends body to service and waits for the reply body. A timed out
// attempt reconnects before the next one.
func (c *Client) Request(ctx context.Context, service ServiceName, body ...[]byte) ([][]byte, error) {
	if err := service.Validate(); err != nil {
		return nil, fmt.Errorf("mdp: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.socket == nil {
		return nil, ErrNotConnected
	}
	c.totalRequests++

	for attempt := 1; attempt <= c.options.Retries; attempt++ {
		reply, err := c.attempt(ctx, service, body)
		if err == nil {
			c.totalReplies++
			return reply, nil
		}
		if !errors.Is(err, ErrTimeout) {
			if ctx.Err() != nil {
				// drop the socket so a late reply cannot answer the next request
				if rerr := c.reconnect(); rerr != nil {
					c.log.Warn().Err(rerr).Msg("reconnect after cancel")
				}
			}
			return nil, err
		}

		c.totalTimeouts++
		c.log.Warn().Str("service", service.String()).Int("attempt", attempt).Msg("no reply, reconnecting")
		if err := c.reconnect(); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrTimeout, service, c.options.Retries)
}

func (c *Client) attempt(ctx context.Context, service ServiceName, body [][]byte) ([][]byte, error) {
	if c.options.Verbose {
		c.log.Debug().Str("service", service.String()).Int("frames", len(body)).Msg("sending request")
	}
	if err := c.socket.Send(zmq4.NewMsgFrom(encodeClient(nil, service, body...)...)); err != nil {
		return nil, fmt.Errorf("mdp: failed to send request: %w", err)
	}

	timer := time.NewTimer(c.options.Timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrTimeout
		case msg := <-c.replies:
			reply, err := c.processReply(msg.Frames, service)
			if err != nil {
				c.log.Warn().Err(err).Msg("discarding reply")
				continue
			}
			return reply, nil
		}
	}
}

// processReply checks a [ "", MDPC01, service, body... ] reply.
func (c *Client) processReply(frames [][]byte, expected ServiceName) ([][]byte, error) {
	msg, err := decodeProtocol(frames)
	if err != nil {
		return nil, err
	}
	if msg.Header != HeaderClient {
		return nil, fmt.Errorf("%w: %s reply to client", ErrUnknownHeader, msg.Header)
	}
	if msg.Service != expected {
		return nil, fmt.Errorf("mdp: reply from service %q, expected %q", msg.Service, expected)
	}
	return msg.Body, nil
}

// ClientStats counts requests made by a client.
type ClientStats struct {
	Requests uint64 `json:"requests"`
	Replies  uint64 `json:"replies"`
	Timeouts uint64 `json:"timeouts"`
}

// Stats returns client statistics
func (c *Client) Stats() ClientStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ClientStats{
		Requests: c.totalRequests,
		Replies:  c.totalReplies,
		Timeouts: c.totalTimeouts,
	}
}

// LookupService asks the broker whether a service has workers, using
// mmi.service. It returns the status code: "200" or "404".
func (c *Client) LookupService(ctx context.Context, name ServiceName) (string, error) {
	reply, err := c.Request(ctx, MMIService, []byte(name))
	if err != nil {
		return "", err
	}
	if len(reply) == 0 {
		return "", fmt.Errorf("%w: empty mmi reply", ErrMalformed)
	}
	return string(reply[0]), nil
}
