// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package majordomo implements a broker for the Majordomo Protocol (MDP/0.1)
// as specified by:
// https://rfc.zeromq.org/spec/7/
//
// It also provides the worker and client peers that speak the protocol to
// the broker.
package majordomo

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Protocol constants as per RFC 7/MDP
const (
	// Default heartbeat values
	DefaultHeartbeatLiveness = 3                       // 3-5 is reasonable
	DefaultHeartbeatInterval = 2500 * time.Millisecond // msecs
	DefaultHeartbeatExpiry   = DefaultHeartbeatInterval * DefaultHeartbeatLiveness

	// InternalServicePrefix is reserved for broker management services (RFC 8/MMI).
	InternalServicePrefix = "mmi."
)

var (
	// ErrMalformed reports a frame sequence that does not follow MDP framing.
	ErrMalformed = errors.New("mdp: malformed message")
	// ErrUnknownHeader reports a protocol header that is neither MDPC01 nor MDPW01.
	ErrUnknownHeader = errors.New("mdp: unknown protocol header")
	// ErrUnknownCommand reports a worker command code outside READY..DISCONNECT.
	ErrUnknownCommand = errors.New("mdp: unknown worker command")
)

// Header identifies the peer role that sent a message.
type Header int

const (
	HeaderUnknown Header = iota
	HeaderClient
	HeaderWorker
)

var (
	clientHeader = []byte("MDPC01")
	workerHeader = []byte("MDPW01")
)

// String returns the wire form of the header.
func (h Header) String() string {
	switch h {
	case HeaderClient:
		return string(clientHeader)
	case HeaderWorker:
		return string(workerHeader)
	default:
		return "UNKNOWN"
	}
}

func (h Header) frame() []byte {
	switch h {
	case HeaderClient:
		return clientHeader
	case HeaderWorker:
		return workerHeader
	}
	return nil
}

func parseHeader(frame []byte) Header {
	switch string(frame) {
	case string(clientHeader):
		return HeaderClient
	case string(workerHeader):
		return HeaderWorker
	}
	return HeaderUnknown
}

// Command is a worker protocol command.
type Command byte

// Worker commands as per MDP specification
const (
	CommandReady      Command = 0x01
	CommandRequest    Command = 0x02
	CommandReply      Command = 0x03
	CommandHeartbeat  Command = 0x04
	CommandDisconnect Command = 0x05
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CommandReady:
		return "READY"
	case CommandRequest:
		return "REQUEST"
	case CommandReply:
		return "REPLY"
	case CommandHeartbeat:
		return "HEARTBEAT"
	case CommandDisconnect:
		return "DISCONNECT"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(c))
	}
}

// Valid reports whether c is one of the five MDP worker commands.
func (c Command) Valid() bool {
	return c >= CommandReady && c <= CommandDisconnect
}

func (c Command) frame() []byte {
	return []byte{byte(c)}
}

func parseCommand(frame []byte) (Command, error) {
	if len(frame) != 1 {
		return 0, fmt.Errorf("%w: command frame of %d bytes", ErrUnknownCommand, len(frame))
	}
	cmd := Command(frame[0])
	if !cmd.Valid() {
		return 0, fmt.Errorf("%w: 0x%02x", ErrUnknownCommand, frame[0])
	}
	return cmd, nil
}

// ServiceName represents a MDP service name
type ServiceName string

// String returns the service name as a string
func (s ServiceName) String() string {
	return string(s)
}

// Validate checks if the service name is valid
func (s ServiceName) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("mdp: empty service name")
	}
	if len(s) > 255 {
		return fmt.Errorf("mdp: service name too long: %d bytes (max 255)", len(s))
	}
	return nil
}

// IsInternal reports whether the name falls under the reserved mmi. prefix.
func (s ServiceName) IsInternal() bool {
	return strings.HasPrefix(string(s), InternalServicePrefix)
}
